// Package email sends transactional mail through AWS SES.
package email

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"whatsbot/internal/common/errors"
	"whatsbot/internal/common/logger"
)

// SESNotifier sends the lifecycle mails the platform produces. It satisfies
// pipeline.Notifier.
type SESNotifier struct {
	client *ses.Client
	from   string
	logger logger.Logger
}

func NewSESNotifier(ctx context.Context, region, from string, log logger.Logger) (*SESNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errors.NewExternalServiceFailedError("ses", err)
	}
	return &SESNotifier{
		client: ses.NewFromConfig(cfg),
		from:   from,
		logger: log,
	}, nil
}

// SubscriptionActivated mails the activation confirmation after an approved
// payment.
func (n *SESNotifier) SubscriptionActivated(ctx context.Context, email, name string) error {
	subject := "¡Tu suscripción está activa!"
	body := fmt.Sprintf(
		"Hola %s,\n\nTu pago fue aprobado y tu suscripción ya está activa. "+
			"Tu bot de WhatsApp está listo para atender a tus clientes.\n\n"+
			"Equipo Mi-IA",
		name,
	)

	_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(n.from),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		n.logger.WithError(err).Error("Activation mail failed", map[string]interface{}{"to": email})
		return errors.NewExternalServiceFailedError("ses", err)
	}

	n.logger.Info("Activation mail sent", map[string]interface{}{"to": email})
	return nil
}

package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCM delivers notifications through Firebase Cloud Messaging.
//
// Devices subscribe themselves to the FCM topic "user-<id>" when the
// user signs in, so the bridge addresses users without storing device
// registration tokens.
type FCM struct {
	client *messaging.Client
}

// NewFCM creates an FCM sink from a service account credentials file.
func NewFCM(ctx context.Context, credentialsFile string) (*FCM, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing fcm client: %w", err)
	}

	return &FCM{client: client}, nil
}

// Send implements Sink by publishing to the user's FCM topic.
func (f *FCM) Send(ctx context.Context, userID string, n Notification) error {
	msg := &messaging.Message{
		Topic: "user-" + userID,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
	}

	if _, err := f.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("sending push to user %s: %w", userID, err)
	}
	return nil
}

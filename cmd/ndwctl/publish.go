package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Guizzs26/ndw-archiver/internal/config"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish [file...]",
	Short: "Publish records to a queue",
	Long:  "Publish one record per file to an archiver queue and wait for the broker to confirm each. Use - to read stdin",
	Example: `  ndwctl publish --queue ndw.form.ltft ltft-123.json
  ndwctl publish --queue ndw.form.formr --header formType=formr-a formr.json
  cat notification.json | ndwctl publish --queue ndw.notification -`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		queue, _ := cmd.Flags().GetString("queue")
		rawHeaders, _ := cmd.Flags().GetStringArray("header")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		if queue == "" {
			return fmt.Errorf("--queue is required")
		}

		headers, err := parseHeaders(rawHeaders)
		if err != nil {
			return err
		}

		conn, err := amqp.Dial(url)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		defer conn.Close()

		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("failed to open channel: %w", err)
		}
		defer ch.Close()

		if err := ch.Confirm(false); err != nil {
			return fmt.Errorf("failed to activate Publisher Confirms: %w", err)
		}
		returns := ch.NotifyReturn(make(chan amqp.Return, 1))

		for _, name := range args {
			body, err := readRecord(cmd.InOrStdin(), name)
			if err != nil {
				return err
			}

			id := uuid.NewString()
			if err := publishRecord(cmd.Context(), ch, queue, id, headers, body, timeout); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if err := checkReturned(returns, id); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[OK] %s published to %s as %s\n", name, queue, id)
		}
		return nil
	},
}

func publishRecord(ctx context.Context, ch *amqp.Channel, queue, id string, headers amqp.Table, body []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Default exchange routes by queue name
	deferred, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, true, false, amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish call failed: %w", err)
	}

	acked, err := deferred.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("publisher confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("RabbitMQ NACK received: message not persisted")
	}
	return nil
}

// checkReturned reports a mandatory publish the broker could not route. The broker sends the
// return before the confirm, so it is already buffered once the confirm arrives
func checkReturned(returns <-chan amqp.Return, id string) error {
	for {
		select {
		case r, ok := <-returns:
			if !ok {
				return nil
			}
			if r.MessageId == id {
				return fmt.Errorf("returned by broker: %d %s (no queue bound to %q)", r.ReplyCode, r.ReplyText, r.RoutingKey)
			}
		default:
			return nil
		}
	}
}

func readRecord(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	body, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	return body, nil
}

// parseHeaders turns key=value pairs into AMQP headers
func parseHeaders(pairs []string) (amqp.Table, error) {
	headers := amqp.Table{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q, expected key=value", pair)
		}
		headers[key] = value
	}
	return headers, nil
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().String("url", config.Load().RabbitMQURL, "RabbitMQ URL")
	publishCmd.Flags().StringP("queue", "q", "", "Destination queue")
	publishCmd.Flags().StringArrayP("header", "H", nil, "Message header as key=value, repeatable")
	publishCmd.Flags().Duration("timeout", 10*time.Second, "Time to wait for each broker confirm")
}

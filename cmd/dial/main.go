// Command dial places an outbound call whose webhook is this service, so the
// assistant can be tried without dialing in.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/voyxa/voice-webhook/internal/config"
	"github.com/voyxa/voice-webhook/internal/observability"
	"github.com/voyxa/voice-webhook/internal/telephony"
)

func main() {
	to := pflag.String("to", config.GetEnv("DIAL_TO", ""), "destination phone number in E.164 form (default $DIAL_TO)")
	webhookURL := pflag.String("url", "", "webhook URL for the call (default PUBLIC_BASE_URL + \"/\")")
	timeout := pflag.Duration("timeout", 30*time.Second, "request timeout")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.WithCorrelationID("")

	if *to == "" {
		fmt.Fprintln(os.Stderr, "--to (or DIAL_TO) is required")
		pflag.Usage()
		os.Exit(2)
	}

	target := *webhookURL
	if target == "" {
		if cfg.PublicBaseURL == "" {
			logger.Fatal().Msg("Neither --url nor PUBLIC_BASE_URL is set")
		}
		target = strings.TrimRight(cfg.PublicBaseURL, "/") + "/"
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := telephony.NewClient(cfg, logger)
	sid, err := client.PlaceCall(ctx, *to, target)
	if err != nil {
		logger.Fatal().Err(err).Str("to", *to).Msg("Failed to place call")
	}

	fmt.Println(sid)
}

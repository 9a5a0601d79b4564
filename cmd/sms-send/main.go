// Command sms-send sends one message through a configured provider and
// prints the deliveries. Provider credentials come from the same
// environment and config file as the gateway.
//
//	sms-send -provider twilio -to +15551230001 -text "Hello"
//	sms-send -to +9779801234567 -template OTP -var otp=1234
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajayykmr/sms-gateway/internal/config"
	"github.com/ajayykmr/sms-gateway/internal/dispatch"
	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/providers/factory"
	"github.com/ajayykmr/sms-gateway/internal/providers/fake"
)

type vars map[string]any

func (v vars) String() string { return fmt.Sprint(map[string]any(v)) }

func (v vars) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	v[strings.TrimSpace(key)] = value
	return nil
}

func main() {
	variables := vars{}
	provider := flag.String("provider", "", "provider name or \"random\" (defaults to SMS_PROVIDER)")
	to := flag.String("to", "", "comma separated recipients")
	text := flag.String("text", "", "message text")
	template := flag.String("template", "", "template id")
	timeout := flag.Duration("timeout", 0, "overall timeout (defaults to PROVIDER_TIMEOUT_SECONDS)")
	flag.Var(variables, "var", "template variable key=value, repeatable")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *provider != "" {
		cfg.SMS.Default = strings.ToLower(*provider)
	}

	reg, err := factory.Registry(cfg.SMS, fake.NewStore(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise sms providers")
	}
	engine := factory.Engines(reg, cfg, nil, nil, log, dispatch.NewLogListener(log))()

	if err := build(engine, *to, *text, *template, variables); err != nil {
		log.Fatal().Err(err).Msg("invalid message")
	}

	d := *timeout
	if d <= 0 {
		d = cfg.Timeouts.Provider() + 5*time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	res, err := engine.SendNow(ctx)
	if res != nil {
		for _, del := range res.Deliveries {
			fmt.Printf("%s\t%s\t%s\n", res.Provider, del.Recipient, del.ProviderMessageID)
		}
	}
	if err != nil {
		log.Fatal().Str("error_kind", errs.Kind(err)).Err(err).Msg("send failed")
	}
}

func build(engine *dispatch.Engine, to, text, template string, variables vars) error {
	var recipients []string
	for _, r := range strings.Split(to, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	if len(recipients) == 0 {
		return errs.Validation("-to is required")
	}
	if err := engine.To(recipients...); err != nil {
		return err
	}
	if text != "" {
		if err := engine.Text(text); err != nil {
			return err
		}
	}
	if template != "" {
		return engine.Template(template, variables)
	}
	return nil
}

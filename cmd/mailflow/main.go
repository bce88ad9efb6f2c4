package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/taskinity/example-email/config"
	"github.com/taskinity/example-email/internal/model"
	"github.com/taskinity/example-email/internal/responder"
	"github.com/taskinity/example-email/pkg/logger"
	"github.com/taskinity/example-email/pkg/trace"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitConfig  = 2
	testSubject = "Test Email"
	testBody    = "This is a test email"
)

type CLI struct {
	ConfigDir string `help:"Config directory path" default:"config" type:"path" name:"config-dir"`
	Env       string `help:"Config overlay to merge over base.yaml (<env>.yaml)" env:"APP_ENV"`
	Verbose   bool   `help:"Debug logging"`
	NoColor   bool   `help:"Disable colored output" name:"no-color"`

	Run struct{} `cmd:"" default:"1" help:"Fetch, classify and answer the newest messages"`

	CheckSMTP struct {
		NoSend bool `help:"Only connect and authenticate" name:"no-send"`
	} `cmd:"" name:"check-smtp" help:"Verify the outbound server and send a test email to testEmail"`

	Respond struct {
		From          string `required:"" help:"Sender address to answer"`
		Subject       string `help:"Subject of the incoming message"`
		Body          string `help:"Body of the incoming message"`
		HasAttachment bool   `help:"Treat the message as carrying an attachment" name:"has-attachment"`
	} `cmd:"" help:"Classify and answer a single message given on the command line"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("mailflow"),
		kong.Description("Mailbox auto-responder"),
		kong.UsageOnError(),
	)
	os.Exit(run(kctx.Command(), &cli))
}

func run(command string, cli *CLI) int {
	log := logger.NewLogger(cli.Verbose)
	defer log.Sync()

	out := newPrinter(os.Stdout, cli.NoColor)

	cfg, err := config.Load(cli.Env, cli.ConfigDir)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Error("Invalid configuration", zap.Error(err))
		out.fail("configuration error: %v", err)
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("Startup failed", zap.Error(err))
		out.fail("startup failed: %v", err)
		return exitFailed
	}
	defer a.Close()
	defer a.pushMetrics()

	switch command {
	case "run":
		return runPipeline(ctx, a, out)
	case "check-smtp":
		return checkSMTP(ctx, a, out, cli.CheckSMTP.NoSend)
	case "respond":
		return respond(ctx, a, out, model.EmailMessage{
			From:          cli.Respond.From,
			Subject:       cli.Respond.Subject,
			Body:          cli.Respond.Body,
			HasAttachment: cli.Respond.HasAttachment,
		})
	}
	out.fail("unknown command %q", command)
	return exitFailed
}

func runPipeline(ctx context.Context, a *app, out *printer) int {
	ctx, runID := trace.Ensure(ctx)
	a.logger.Info("Starting run", zap.String("run_id", runID))

	stats, err := a.orch.Run(ctx)
	if err != nil {
		out.aborted(err)
		return exitFailed
	}
	out.summary(stats)
	return exitOK
}

func checkSMTP(ctx context.Context, a *app, out *printer, noSend bool) int {
	cfg := a.responder.Config()
	if err := a.responder.Check(ctx); err != nil {
		out.fail("SMTP check failed (%s, circuit %s): %v", responder.KindOf(err), a.smtp.BreakerState(), err)
		return exitFailed
	}
	out.ok("SMTP connection OK: %s:%d", cfg.Server, cfg.Port)

	if noSend {
		return exitOK
	}
	if a.cfg.TestEmail == "" {
		out.fail("testEmail is not configured, skipping test send")
		return exitFailed
	}

	err := a.responder.Send(ctx, model.ResponseDraft{
		Recipient: a.cfg.TestEmail,
		Subject:   testSubject,
		Body:      testBody,
	})
	if err != nil {
		out.fail("test email to %s failed: %v", a.cfg.TestEmail, err)
		return exitFailed
	}
	out.ok("Test email sent to %s", a.cfg.TestEmail)
	return exitOK
}

func respond(ctx context.Context, a *app, out *printer, msg model.EmailMessage) int {
	draft, err := a.orch.Respond(ctx, msg)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			out.fail("cancelled")
			return exitFailed
		}
		out.fail("reply to %s failed: %v", msg.From, err)
		return exitFailed
	}
	out.ok("Replied to %s (%s): %s", draft.Recipient, draft.Category, draft.Subject)
	fmt.Fprintln(out.w, draft.Body)
	return exitOK
}

// The closer settles the bonus agreements listed in a user request
// message and reports the outcome back to the requester. It is
// triggered with the id of the request message and runs one closing
// batch end to end: fetch the user input, settle every agreement in
// VBO2, amend the created credit memo requests in VA02, write the
// report and mail it out.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agreement-closing/internal/closing/application"
	"agreement-closing/internal/closing/batchlog"
	closing "agreement-closing/internal/closing/domain"
	"agreement-closing/internal/closing/interfaces"
	"agreement-closing/internal/closing/metrics"
	"agreement-closing/internal/mailbox"
	"agreement-closing/internal/orders"
	"agreement-closing/internal/sapgui"
	"agreement-closing/internal/sapgui/olegui"
	"agreement-closing/internal/settlement"
)

const (
	appName    = "CS Agreement Closing"
	appVersion = "2.0.20250310"
)

type config struct {
	emailID    string
	configPath string
}

// userInput carries everything extracted from the request message.
type userInput struct {
	sender      string
	companyCode string
	items       []closing.WorkItem
	attachment  string
}

func main() {
	args := parseFlags()

	// The logger exists before the app config loads, so the log
	// location honors the environment only.
	logDir := filepath.Join(getenvDefault("CLOSING_WORK_DIR", "."), "logs")
	logger, logFile, err := application.OpenRunLog(logDir, appName, appVersion)
	if err != nil {
		fmt.Fprintln(os.Stderr, "CRITICAL:", err)
		os.Exit(1)
	}

	code := run(context.Background(), logger, args)
	logger.Printf("=== System shutdown with return code: %d ===", code)
	logFile.Close()
	os.Exit(code)
}

// run returns the process exit code: 0 on success, 2 when the
// initialization fails, 3 when the processing or reporting fails.
func run(ctx context.Context, logger *log.Logger, args config) int {
	logger.Println("=== Initialization ===")

	cfg, err := application.LoadConfig(args.configPath)
	if err != nil {
		return initFailure(logger, err)
	}
	input, err := fetchUserInput(ctx, logger, cfg, args.emailID)
	if err != nil {
		return initFailure(logger, err)
	}
	rules, err := application.LoadRules(cfg.RulesPath(), input.companyCode)
	if err != nil {
		return initFailure(logger, err)
	}

	svc, err := buildService(logger, cfg)
	if err != nil {
		return initFailure(logger, err)
	}

	logger.Println("Connecting to SAP ...")
	conn, err := olegui.Connect(cfg.GUI.System)
	if err != nil {
		return initFailure(logger, err)
	}
	logger.Println("Connection created.")

	logger.Println("=== Initialization OK ===")
	logger.Println()

	if cfg.MetricsAddr != "" {
		go serveMetrics(logger, cfg.MetricsAddr)
	}

	code := 0
	if err := process(ctx, logger, svc, conn.Session(), cfg, rules, input); err != nil {
		logger.Printf("ERROR: %v", err)
		logger.Println("=== Failure ===")
		logger.Println()
		code = 3
	}

	// Cleanup runs in every outcome once the connection exists.
	logger.Println("=== Cleanup ===")
	svc.RemoveTempFiles(cfg)
	logger.Println("Disconnecting from SAP ...")
	if err := conn.Close(); err != nil {
		logger.Printf("ERROR: %v", err)
	} else {
		logger.Println("Connection to SAP closed.")
	}
	logger.Println("=== Cleanup OK ===")
	logger.Println()
	return code
}

// process drives the settlement and reporting phases against a live
// GUI session.
func process(ctx context.Context, logger *log.Logger, svc *application.Service, handle sapgui.Session, cfg application.Config, rules closing.Rules, input userInput) error {
	logger.Printf("=== Processing agreements for %s ===", rules.Country)
	results, err := svc.ProcessAgreements(ctx, handle, rules, input.items, input.attachment, input.companyCode)
	if err != nil {
		return err
	}
	logger.Println("=== Processing OK ===")
	logger.Println()

	logger.Println("=== Reporting ===")
	if _, err := svc.CreateReport(results, cfg, rules, input.companyCode); err != nil {
		return err
	}
	if cfg.Messages.Notifications.Send {
		svc.SendNotification(ctx, cfg, input.sender)
	} else {
		logger.Println("WARNING: Sending of user notifications disabled in 'app_config.yaml'.")
	}
	logger.Println("=== Reporting OK ===")
	return nil
}

// fetchUserInput pulls the request message from the shared mailbox
// and extracts the agreement list, the permission document and the
// company code from it.
func fetchUserInput(ctx context.Context, logger *log.Logger, cfg application.Config, emailID string) (userInput, error) {
	logger.Println("Fetching user input ...")

	if emailID == "" {
		return userInput{}, errors.New("missing value for the -email_id argument")
	}

	requests := cfg.Messages.Requests
	creds, err := mailbox.LoadCredentials(cfg.CredentialsDir(), requests.Account)
	if err != nil {
		return userInput{}, err
	}
	var opts []mailbox.ClientOption
	if requests.Server != "" {
		opts = append(opts, mailbox.WithBaseURL(requests.Server))
	}
	client, err := mailbox.NewClient(requests.Mailbox, creds, opts...)
	if err != nil {
		return userInput{}, err
	}
	msg, err := client.GetMessage(ctx, emailID)
	if err != nil {
		return userInput{}, err
	}

	if err := os.MkdirAll(cfg.InputDir(), 0o755); err != nil {
		return userInput{}, err
	}
	if err := os.MkdirAll(cfg.DocDir(), 0o755); err != nil {
		return userInput{}, err
	}
	dataPaths, err := client.SaveAttachments(ctx, msg, cfg.InputDir(), ".xlsm")
	if err != nil {
		return userInput{}, err
	}
	if len(dataPaths) == 0 {
		return userInput{}, errors.New("the message carries no .xlsm data attachment")
	}
	docPaths, err := client.SaveAttachments(ctx, msg, cfg.DocDir(), ".pdf")
	if err != nil {
		return userInput{}, err
	}
	if len(docPaths) == 0 {
		return userInput{}, errors.New("the message carries no .pdf document attachment")
	}
	logger.Println("User input fetched.")

	attachedDoc := filepath.Base(docPaths[0])
	if expected := cfg.Data.DocumentName; expected != "" && attachedDoc != expected {
		logger.Printf("WARNING: The name of the attached document %q differs from the expected %q name.", attachedDoc, expected)
	}

	logger.Println("Loading excel input data ...")
	items, err := interfaces.ParseAgreementWorkbook(dataPaths[0])
	if err != nil {
		return userInput{}, err
	}
	logger.Println("Data loaded.")

	logger.Println("Extracting parameters from the email body ...")
	companyCode, err := interfaces.ExtractCompanyCode(msg.Body)
	if err != nil {
		return userInput{}, err
	}
	logger.Println("Extraction completed.")

	input := userInput{
		sender:      msg.Sender,
		companyCode: companyCode,
		items:       items,
		attachment:  docPaths[0],
	}
	logger.Printf("User email: %q", input.sender)
	logger.Printf("Company code: %q", input.companyCode)
	logger.Printf("PDF attachment: %q", input.attachment)
	logger.Printf("Number of excel entries: %d", len(input.items))
	return input, nil
}

func buildService(logger *log.Logger, cfg application.Config) (*application.Service, error) {
	batches, err := batchlog.NewStore(cfg.BatchDir())
	if err != nil {
		return nil, err
	}

	var notifier application.Notifier
	if cfg.Messages.Notifications.Send {
		n, err := mailbox.NewNotifier(mailbox.NotifierConfig{
			Sender:       cfg.Messages.Notifications.Sender,
			Subject:      cfg.Messages.Notifications.Subject,
			Host:         cfg.Messages.Notifications.Host,
			Port:         cfg.Messages.Notifications.Port,
			TemplatePath: cfg.TemplatePath(),
		}, logger)
		if err != nil {
			return nil, err
		}
		notifier = n
	}

	return application.NewService(settlement.New(logger), orders.New(logger), batches, notifier, metrics.New(), logger, cfg.DumpDir())
}

func initFailure(logger *log.Logger, err error) int {
	logger.Printf("ERROR: %v", err)
	logger.Println("CRITICAL: Could not initialize the application!")
	return 2
}

func serveMetrics(logger *log.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Printf("WARNING: metrics listener: %v", err)
	}
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.emailID, "email_id", "", "id of the user request message")
	flag.StringVar(&cfg.configPath, "config", "", "path of the app config file")
	flag.Parse()
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	config "github.com/tupyy/mdm-agent-ng/configuration"
	"github.com/tupyy/mdm-agent-ng/internal/agent"
	httpClient "github.com/tupyy/mdm-agent-ng/internal/client/http"
	"github.com/tupyy/mdm-agent-ng/internal/dispatcher"
	"github.com/tupyy/mdm-agent-ng/internal/entity"
	"github.com/tupyy/mdm-agent-ng/internal/inventory"
	"github.com/tupyy/mdm-agent-ng/internal/location"
	"github.com/tupyy/mdm-agent-ng/internal/store"
	"github.com/tupyy/mdm-agent-ng/internal/transport"
)

const offlinePayload = `{"online": false}`

var (
	configFile    string
	server        string
	storePath     string
	documentsRoot string
	logLevel      string
)

var rootCmd = &cobra.Command{
	Use:   "mdm-agent",
	Short: "MDM device agent",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.InitConfiguration(cmd, configFile)
	},
	Run: func(cmd *cobra.Command, args []string) {
		logger := setupLogger()
		defer logger.Sync()

		undo := zap.ReplaceGlobals(logger)
		defer undo()

		sessionStore, err := store.New(config.GetStorePath())
		if err != nil {
			panic(err)
		}

		identity, enrolled, err := sessionStore.Agent()
		if err != nil {
			panic(err)
		}

		if !enrolled {
			zap.S().Info("device is not enrolled. run 'mdm-agent enroll' first")
			return
		}

		controller, unenrolled := newSession(sessionStore, identity)
		controller.Start()

		done := make(chan os.Signal, 1)
		signal.Notify(done, os.Interrupt, syscall.SIGTERM)

		select {
		case <-done:
			controller.Shutdown()
		case <-unenrolled:
			zap.S().Info("device unenrolled. run 'mdm-agent enroll' to manage it again")
		}
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "management server address")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "session store path")
	rootCmd.PersistentFlags().StringVar(&documentsRoot, "documents", "", "local document area root")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
}

// newSession builds the session core for an enrolled device. The returned
// channel receives once when the device unenrolls itself.
func newSession(sessionStore *store.Store, identity entity.AgentIdentity) (*agent.Controller, chan struct{}) {
	client, err := httpClient.New(config.GetServerAddress(), config.GetHttpRequestTimeout())
	if err != nil {
		panic(err)
	}

	deeplink, _, err := sessionStore.DeepLink()
	if err != nil {
		zap.S().Warnw("cannot read enrollment deep link", "error", err)
	}

	latitude, longitude := config.GetLocation()

	tr := transport.New(transport.Config{
		Host:        identity.BrokerHost,
		Port:        identity.BrokerPort,
		Username:    identity.SerialNumber,
		Password:    identity.BrokerPassword,
		WillTopic:   identity.BaseTopic + "/Status/Online",
		WillPayload: []byte(offlinePayload),
	})

	disp := dispatcher.New(
		tr,
		client,
		sessionStore,
		location.NewStaticProvider(latitude, longitude),
		inventory.New(identity.SerialNumber, config.GetOSVersion()),
		dispatcher.NewDocumentArea(config.GetDocumentsRoot()),
		identity.BaseTopic,
		deeplink.UserToken,
	)

	controller := agent.New(tr, disp, sessionStore, identity)

	tr.OnConnect = controller.HandleConnect
	tr.OnMessage = controller.HandleMessage
	tr.OnConnectionLost = controller.HandleConnectionLost

	unenrolled := make(chan struct{}, 1)
	disp.OnUnenroll = func() {
		unenrolled <- struct{}{}
	}

	if sessionStore.AdminFlag() {
		controller.MessageObserver = func(topic string, payload []byte) {
			zap.S().Infow("broker message", "topic", topic, "payload", string(payload))
		}
	}

	return controller, unenrolled
}

func setupLogger() *zap.Logger {
	loggerCfg := &zap.Config{
		Level:    zap.NewAtomicLevelAt(zapcore.InfoLevel),
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "severity",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeTime:     zapcore.RFC3339TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	atomicLogLevel, err := zap.ParseAtomicLevel(logLevel)
	if err == nil {
		loggerCfg.Level = atomicLogLevel
	}

	plain, err := loggerCfg.Build(zap.AddStacktrace(zap.DPanicLevel))
	if err != nil {
		panic(err)
	}

	return plain
}

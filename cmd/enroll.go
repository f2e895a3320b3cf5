package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	config "github.com/tupyy/mdm-agent-ng/configuration"
	httpClient "github.com/tupyy/mdm-agent-ng/internal/client/http"
	"github.com/tupyy/mdm-agent-ng/internal/enrollment"
	"github.com/tupyy/mdm-agent-ng/internal/entity"
	"github.com/tupyy/mdm-agent-ng/internal/store"
)

var (
	email           string
	firstName       string
	lastName        string
	userToken       string
	invitationToken string
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll this device with the management server",
	Run: func(cmd *cobra.Command, args []string) {
		logger := setupLogger()
		defer logger.Sync()

		undo := zap.ReplaceGlobals(logger)
		defer undo()

		sessionStore, err := store.New(config.GetStorePath())
		if err != nil {
			panic(err)
		}

		if _, enrolled, _ := sessionStore.Agent(); enrolled {
			zap.S().Info("device is already enrolled")
			return
		}

		client, err := httpClient.New(config.GetServerAddress(), config.GetHttpRequestTimeout())
		if err != nil {
			panic(err)
		}

		// the deep link tokens outlive enrollment; file deploys reuse them
		if err := sessionStore.SetDeepLink(entity.DeepLink{
			UserToken:       userToken,
			InvitationToken: invitationToken,
		}); err != nil {
			panic(err)
		}

		workflow := enrollment.New(
			client,
			sessionStore,
			userToken,
			invitationToken,
			config.GetDeviceSerial(),
			config.GetOSVersion(),
			config.GetFailRevertDelay(),
		)

		identity, err := workflow.Run(context.Background(), enrollment.Submission{
			Email:     email,
			FirstName: firstName,
			LastName:  lastName,
		})
		if err != nil {
			// the workflow already logged the server message
			os.Exit(1)
		}

		// hand control to the session core after the success display delay
		<-time.After(config.GetFailRevertDelay())

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

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().StringVar(&email, "email", "", "user email")
	enrollCmd.Flags().StringVar(&firstName, "first-name", "", "user first name")
	enrollCmd.Flags().StringVar(&lastName, "last-name", "", "user last name")
	enrollCmd.Flags().StringVar(&userToken, "user-token", "", "api user token from the invitation")
	enrollCmd.Flags().StringVar(&invitationToken, "invitation-token", "", "invitation token")

	enrollCmd.MarkFlagRequired("email")
	enrollCmd.MarkFlagRequired("user-token")
	enrollCmd.MarkFlagRequired("invitation-token")
}

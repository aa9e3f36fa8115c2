// Copyright © 2026 the wisp authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/howeyc/gopass"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wisplib/wisp/pkg/auth"
	"github.com/wisplib/wisp/pkg/transport"
	"github.com/wisplib/wisp/pkg/wisp"
)

var (
	log            *logrus.Logger
	promptForToken bool
	whisperEvent   string
)

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen channel...",
	Short: "Subscribe to channels and print their events",
	Long: `listen connects to a wisp server, subscribes the named channels,
and prints every event they carry.

Lines typed on standard input are sent to the first channel as whispers.
Private and presence channels need an auth endpoint; the auth token is
taken from the WISP_AUTH_TOKEN environment variable unless
--prompt-for-token is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runListen,
}

func init() {
	RootCmd.AddCommand(listenCmd)

	listenCmd.Flags().StringP("url", "u", "ws://127.0.0.1:8080/ws", "websocket URL of the wisp server")
	viper.BindPFlag("server.url", listenCmd.Flags().Lookup("url"))
	listenCmd.Flags().StringP("auth-endpoint", "a", "", "HTTP endpoint authorizing private and presence subscriptions")
	viper.BindPFlag("auth.endpoint", listenCmd.Flags().Lookup("auth-endpoint"))
	listenCmd.Flags().BoolVarP(&promptForToken, "prompt-for-token", "p", false, "prompt for the auth token instead of reading WISP_AUTH_TOKEN")
	listenCmd.Flags().StringVarP(&whisperEvent, "whisper-event", "w", "client-message", "event name for whispers sent from standard input")
}

func runListen(cmd *cobra.Command, args []string) error {
	log = logrus.New()
	log.Out = os.Stderr
	log.Formatter = new(logrus.TextFormatter)
	log.Level = logrus.DebugLevel

	authorizer, err := buildAuthorizer()
	if err != nil {
		return err
	}

	// The registry needs the connection's send capability, and the
	// connection's read loop needs the registry; frames arriving before the
	// registry exists are dropped, which only loses events for channels
	// nothing has subscribed yet.
	var regMTX sync.RWMutex
	var reg *wisp.Registry
	conn, err := transport.Dial(viper.GetString("server.url"), transport.Config{
		Log: log,
		Handler: func(f wisp.Frame) {
			regMTX.RLock()
			r := reg
			regMTX.RUnlock()
			if r != nil {
				r.HandleFrame(f)
			}
		},
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	regMTX.Lock()
	reg = wisp.NewRegistry(wisp.Config{
		Conn:       conn,
		Authorizer: authorizer,
		SocketID:   conn.SocketID,
		Log:        log,
	})
	regMTX.Unlock()

	for _, name := range args {
		ch, err := reg.Subscribe(name)
		if err != nil {
			return errors.Wrapf(err, "Subscribe %s", name)
		}
		watch(ch)
		log.WithFields(logrus.Fields{
			"channel": name,
			"kind":    ch.Kind(),
		}).Info("Subscribed")
	}

	go whisperFromStdin(reg.Channel(args[0]))
	<-conn.Done()
	return nil
}

// buildAuthorizer wires the HTTP auth client if an endpoint is configured.
func buildAuthorizer() (wisp.Authorizer, error) {
	endpoint := viper.GetString("auth.endpoint")
	if endpoint == "" {
		return nil, nil
	}

	token := os.Getenv("WISP_AUTH_TOKEN")
	if promptForToken {
		fmt.Printf("Auth token: ")
		pass, err := gopass.GetPasswd()
		if err != nil {
			return nil, err
		}
		token = string(pass)
	}

	opts := []auth.Option{}
	if token != "" {
		opts = append(opts, auth.WithHeader("Authorization", "Bearer "+token))
	}
	return auth.NewClient(endpoint, opts...).Authorize, nil
}

// watch prints every event and, for presence channels, every membership
// change.
func watch(ch *wisp.Channel) {
	ch.BindGlobal(func(event string, data json.RawMessage) {
		fmt.Printf("[%s] %s %s\n", ch.Name(), event, data)
	})
	ch.BindMemberChange(func(change wisp.MemberChange) {
		switch change.Type {
		case wisp.MemberSnapshot:
			fmt.Printf("[%s] %d members present\n", ch.Name(), len(change.Members))
		case wisp.MemberAdded:
			fmt.Printf("[%s] %s joined\n", ch.Name(), change.Member.UserID)
		case wisp.MemberRemoved:
			fmt.Printf("[%s] %s left\n", ch.Name(), change.Member.UserID)
		}
	})
}

// whisperFromStdin relays typed lines to the channel as client events.
func whisperFromStdin(ch *wisp.Channel) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		err := ch.Whisper(whisperEvent, map[string]interface{}{"text": line})
		if err != nil {
			log.WithFields(logrus.Fields{
				"channel": ch.Name(),
				"error":   err,
			}).Warn("Whisper not sent")
		}
	}
}

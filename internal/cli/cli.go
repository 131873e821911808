package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/grussorusso/offloadledge/internal/bus"
	"github.com/grussorusso/offloadledge/internal/config"
	"github.com/grussorusso/offloadledge/internal/wamp"
)

// RemoteServerConf locates the admin API of a server.
type RemoteServerConf struct {
	Host string
	Port int
}

var ServerConfig RemoteServerConf

var rootCmd = &cobra.Command{
	Use:   "offloadledge-cli",
	Short: "CLI utility for offloadledge",
	Long:  `CLI utility acting as a mobile client of an offloadledge server.`,
}

var offloadCmd = &cobra.Command{
	Use:   "offload",
	Short: "Offloads a code fragment and waits for its result",
	Run:   offload,
}

var sendFileCmd = &cobra.Command{
	Use:   "sendfile",
	Short: "Sends a resource file to the server",
	Run:   sendFile,
}

var progressiveCmd = &cobra.Command{
	Use:   "progressive",
	Short: "Runs a paced progressive transfer",
	Run:   progressive,
}

var callCmd = &cobra.Command{
	Use:   "call <procedure>",
	Short: "Calls a promoted procedure through the router",
	Args:  cobra.ExactArgs(1),
	Run:   call,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Prints the server status",
	Run:   getStatus,
}

var proceduresCmd = &cobra.Command{
	Use:   "procedures",
	Short: "Lists the promoted procedures",
	Run:   listProcedures,
}

var invokeCmd = &cobra.Command{
	Use:   "invoke <procedure>",
	Short: "Invokes a promoted procedure through the admin API",
	Args:  cobra.ExactArgs(1),
	Run:   invoke,
}

var routerURL, realm, topicPrefix string
var source, operation, codeFile, resourceName, params, input, filePath string
var chunks int
var timeout time.Duration

func Init() {
	rootCmd.PersistentFlags().StringVarP(&ServerConfig.Host, "host", "H", ServerConfig.Host, "remote offloadledge host")
	rootCmd.PersistentFlags().IntVarP(&ServerConfig.Port, "port", "P", ServerConfig.Port, "remote offloadledge API port")
	rootCmd.PersistentFlags().StringVarP(&routerURL, "router", "r", config.RouterURL(), "router address")
	rootCmd.PersistentFlags().StringVar(&realm, "realm", config.GetString(config.ROUTER_REALM, config.DefaultRealm), "router realm")
	rootCmd.PersistentFlags().StringVar(&topicPrefix, "prefix", config.GetString(config.TOPIC_PREFIX, ""), "topic prefix")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 60*time.Second, "how long to wait for replies")

	rootCmd.AddCommand(offloadCmd)
	offloadCmd.Flags().StringVarP(&source, "source", "s", "Android", "source platform")
	offloadCmd.Flags().StringVarP(&operation, "operation", "o", "", "operation name")
	offloadCmd.Flags().StringVarP(&codeFile, "code", "c", "", "file holding the code fragment (optional for cached operations)")
	offloadCmd.Flags().StringVarP(&resourceName, "resource", "R", "", "resource name")
	offloadCmd.Flags().StringVarP(&params, "params", "p", "", "parameters")

	rootCmd.AddCommand(sendFileCmd)
	sendFileCmd.Flags().StringVarP(&source, "source", "s", "Android", "source platform")
	sendFileCmd.Flags().StringVarP(&filePath, "file", "f", "", "file to send")

	rootCmd.AddCommand(progressiveCmd)
	progressiveCmd.Flags().IntVarP(&chunks, "chunks", "n", 5, "number of chunks")

	rootCmd.AddCommand(callCmd)
	callCmd.Flags().StringVarP(&resourceName, "resource", "R", "", "resource name")
	callCmd.Flags().StringVarP(&input, "input", "i", "", "input")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(proceduresCmd)

	rootCmd.AddCommand(invokeCmd)
	invokeCmd.Flags().StringVarP(&resourceName, "resource", "R", "", "resource name")
	invokeCmd.Flags().StringVarP(&input, "input", "i", "", "input")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func dial() *wamp.Client {
	c, err := wamp.Dial(routerURL, realm, timeout)
	if err != nil {
		fmt.Printf("Failed to connect to Router at %s: %v\n", routerURL, err)
		os.Exit(2)
	}
	return c
}

func topics() bus.Topics {
	return bus.Topics{Prefix: topicPrefix}
}

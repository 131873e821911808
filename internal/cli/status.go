package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grussorusso/offloadledge/internal/api"
	"github.com/grussorusso/offloadledge/utils"
)

func getStatus(cmd *cobra.Command, args []string) {
	get("status")
}

func listProcedures(cmd *cobra.Command, args []string) {
	get("procedures")
}

func get(path string) {
	url := fmt.Sprintf("http://%s:%d/%s", ServerConfig.Host, ServerConfig.Port, path)
	body, err := utils.GetJson(url)
	if err != nil {
		fmt.Printf("Request failed: %v\n", err)
		os.Exit(2)
	}
	if err := utils.PrintJson(os.Stdout, body); err != nil {
		fmt.Printf("Malformed response: %v\n", err)
		os.Exit(2)
	}
}

func invoke(cmd *cobra.Command, args []string) {
	request := api.InvocationRequest{ResourceName: resourceName, Input: input}
	body, err := json.Marshal(request)
	if err != nil {
		fmt.Printf("Could not encode request: %v\n", err)
		os.Exit(1)
	}
	url := fmt.Sprintf("http://%s:%d/invoke/%s", ServerConfig.Host, ServerConfig.Port, args[0])
	raw, err := utils.PostJson(url, body)
	if err != nil {
		fmt.Printf("Invocation failed: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(utils.JsonExtractStringOrDefault(raw, "Output", ""))
	fmt.Printf("(took %s seconds)\n", utils.JsonExtractStringOrDefault(raw, "Duration", "?"))
	if errs := utils.JsonExtractStringOrDefault(raw, "Errors", ""); errs != "" {
		fmt.Printf("errors:\n%s\n", errs)
	}
}

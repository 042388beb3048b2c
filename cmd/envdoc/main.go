package main

import (
	"fmt"
	"os"

	"judge0gw/internal/config"
)

func main() {
	fmt.Println("# Judge0 Gateway Environment Variables")
	fmt.Println()
	fmt.Println("The gateway supports configuration via environment variables.")
	fmt.Println("Environment variables override values from the configuration file.")
	fmt.Println("JUDGE0_HOST, SUPABASE_URL and SUPABASE_KEY are accepted for compatibility;")
	fmt.Println("the GATEWAY_ variables take precedence.")
	fmt.Println()
	fmt.Println("## Available Environment Variables")
	fmt.Println()
	fmt.Println("| Variable | Type | Example |")
	fmt.Println("|---|---|---|")

	for _, v := range config.EnvVars() {
		fmt.Printf("| `%s` | %s | `%s` |\n", v.Name, v.Type, v.Example)
	}

	fmt.Println()
	fmt.Println("## Examples")
	fmt.Println()
	fmt.Println("```bash")
	fmt.Println("# Point the gateway at Judge0 and a Supabase project")
	fmt.Println("export GATEWAY_BACKEND_HOST=http://judge0:2358")
	fmt.Println("export GATEWAY_QUOTA_STORE_URL=https://project.supabase.co")
	fmt.Println("export GATEWAY_QUOTA_STORE_CREDENTIAL=service-role-key")
	fmt.Println()
	fmt.Println("# Keep quotas in redis instead")
	fmt.Println("export GATEWAY_QUOTA_STORE_DRIVER=redis")
	fmt.Println("export GATEWAY_QUOTA_STORE_URL=redis://localhost:6379/0")
	fmt.Println()
	fmt.Println("# Lower the daily limit")
	fmt.Println("export GATEWAY_QUOTA_DEFAULTLIMIT=20")
	fmt.Println()
	fmt.Println("# Run gateway with env vars")
	fmt.Println("./gateway -config gateway.yaml")
	fmt.Println("```")
	fmt.Println()
	fmt.Println("## Default Configuration")
	fmt.Println()
	fmt.Println("```yaml")
	fmt.Print(config.DefaultYAML())
	fmt.Println("```")

	os.Exit(0)
}

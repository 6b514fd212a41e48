package wizard

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"treacle/internal/conf"
)

var outputPath string

func init() {
	Cmd.Flags().StringVarP(&outputPath, "output", "o", "config.yaml", "Output path for the generated configuration file.")
}

var Cmd = &cobra.Command{
	Use:   "wizard",
	Short: "Interactive wizard for generating a treacle configuration file.",
	Long:  `The wizard walks you through creating a treacle configuration file, with bandwidth presets for common slow-link profiles.`,
	Run: func(cmd *cobra.Command, args []string) {
		runWizard()
	},
}

// linkProfile pairs a human-readable slow-link name with its sustained
// throughput in bytes per second.
type linkProfile struct {
	name string
	bps  int
}

// Throughputs are effective application-level rates, not raw line rates;
// the 28.8k figure is the classic dial-up anchor.
var profiles = []linkProfile{
	{"28.8k modem", conf.DefaultBytesPerSecond},
	{"56k modem", 6272},
	{"ISDN 64k", 7168},
	{"GPRS", 5376},
	{"EDGE", 26432},
	{"DSL 256k", 28672},
}

func runWizard() {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║      treacle Configuration Wizard        ║")
	fmt.Println("╚══════════════════════════════════════════╝")
	fmt.Println()

	// Step 1: Local port
	listenPort := askInt(reader, "Local port to listen on", conf.DefaultListenPort, 1, 65535)

	// Step 2: Destination
	dest := askString(reader, "Destination URL or host:port (e.g. http://example.com)", "")
	for dest == "" {
		fmt.Println("⚠  A destination is required.")
		dest = askString(reader, "Destination URL or host:port", "")
	}

	// Step 3: Bandwidth
	fmt.Println("\n🐌 Link profiles:")
	for i, p := range profiles {
		fmt.Printf("   %d) %-12s %6d bytes/sec\n", i+1, p.name, p.bps)
	}
	fmt.Printf("   %d) custom\n", len(profiles)+1)
	fmt.Printf("   %d) unlimited (no throttling)\n", len(profiles)+2)
	choice := askInt(reader, "Select profile number", 1, 1, len(profiles)+2)

	var bps int
	switch {
	case choice <= len(profiles):
		bps = profiles[choice-1].bps
	case choice == len(profiles)+1:
		bps = askInt(reader, "Bandwidth ceiling in bytes per second", conf.DefaultBytesPerSecond, 1, 1<<30)
	default:
		bps = 0
	}

	// Step 4: Log level
	logLevel := askChoice(reader, "Log level", []string{"none", "debug", "info", "warn", "error", "fatal"}, "info")

	cfg := &conf.Conf{
		ListenPort:      listenPort,
		Destination_:    dest,
		BytesPerSecond_: &bps,
		Log:             conf.Log{Level: logLevel},
	}
	if err := cfg.Finalize(); err != nil {
		fmt.Printf("❌ Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Save(outputPath); err != nil {
		fmt.Printf("❌ Error writing config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n✅ Configuration written to: %s\n", outputPath)
	fmt.Println()
	fmt.Println("🔧 Next steps:")
	fmt.Printf("   • Start the proxy:  treacle run --config %s\n", outputPath)
	fmt.Printf("   • Point your browser's proxy setting at localhost:%d\n", listenPort)
	if bps > 0 {
		fmt.Printf("   • Every page load will be capped at %d bytes/sec aggregate\n", bps)
	} else {
		fmt.Println("   • Throttling is off; traffic is relayed at transport speed")
	}
	fmt.Println()
}

// --- Helpers ---

func askString(reader *bufio.Reader, prompt, def string) string {
	if def != "" {
		fmt.Printf("   %s [%s]: ", prompt, def)
	} else {
		fmt.Printf("   %s: ", prompt)
	}
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func askChoice(reader *bufio.Reader, prompt string, choices []string, def string) string {
	fmt.Printf("   %s (%s) [%s]: ", prompt, strings.Join(choices, "/"), def)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	for _, c := range choices {
		if strings.EqualFold(line, c) {
			return c
		}
	}
	fmt.Printf("   Invalid choice '%s', using default '%s'\n", line, def)
	return def
}

func askInt(reader *bufio.Reader, prompt string, def, min, max int) int {
	fmt.Printf("   %s [%d]: ", prompt, def)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	v, err := strconv.Atoi(line)
	if err != nil || v < min || v > max {
		fmt.Printf("   Invalid, using default %d\n", def)
		return def
	}
	return v
}

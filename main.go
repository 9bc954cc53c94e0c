package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"lobbyctl/analytics"
	"lobbyctl/lobby"
	"lobbyctl/manager"
)

// SoftwareName is the name of this software
const SoftwareName = "lobbyctl"

// SoftwareVersion is the version of this software
const SoftwareVersion = "v1.0.0"

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetLevel(log.InfoLevel)

	// Optional .env carrying the same variables as the environment
	_ = godotenv.Load()

	log.WithFields(log.Fields{
		"software": SoftwareName,
		"version":  SoftwareVersion,
	}).Info("Starting...")

	cfg, creds, analyticsPath := loadConfig()

	ledger := analytics.Open(analyticsPath)
	mgr := manager.New(creds, cfg, ledger)

	runLoop(mgr)

	mgr.Close()
}

func loadConfig() (lobby.Config, lobby.Credentials, string) {
	var configLocation string = "lobbyctl.ini"
	if os.Getenv("LOBBYCTL_CONFIG") != "" {
		configLocation = os.Getenv("LOBBYCTL_CONFIG")
	}

	cfg := lobby.Config{
		BaseURL:  lobby.DefaultBaseURL,
		AuthURL:  lobby.DefaultAuthURL,
		PageSize: lobby.DefaultPageSize,
	}
	creds := lobby.Credentials{
		KeyID:         os.Getenv("UNITY_KEY_ID"),
		SecretKey:     os.Getenv("UNITY_SECRET_KEY"),
		ProjectID:     os.Getenv("UNITY_PROJECT_ID"),
		EnvironmentID: os.Getenv("UNITY_ENVIRONMENT_ID"),
	}
	analyticsPath := "LobbyAnalytics.json"

	file, err := ini.Load(configLocation)
	if err != nil {
		log.WithField("config", configLocation).Info("No configuration file, using defaults and environment")
		return cfg, creds, analyticsPath
	}

	service := file.Section("service")
	if v := service.Key("baseUrl").String(); v != "" {
		cfg.BaseURL = v
	}
	if v := service.Key("authUrl").String(); v != "" {
		cfg.AuthURL = v
	}
	if v, keyErr := service.Key("pageSize").Int(); keyErr == nil && v > 0 {
		cfg.PageSize = v
	}

	credentials := file.Section("credentials")
	if v := credentials.Key("keyId").String(); v != "" {
		creds.KeyID = v
	}
	if v := credentials.Key("secretKey").String(); v != "" {
		creds.SecretKey = v
	}
	if v := credentials.Key("projectId").String(); v != "" {
		creds.ProjectID = v
	}
	if v := credentials.Key("environmentId").String(); v != "" {
		creds.EnvironmentID = v
	}

	if v := file.Section("analytics").Key("file").String(); v != "" {
		analyticsPath = v
	}

	return cfg, creds, analyticsPath
}

// runLoop reads commands from stdin until quit or EOF. This is the whole
// presentation layer; everything it does is a call into the manager followed
// by printing the manager's status line.
func runLoop(mgr *manager.Manager) {
	log.Info("Lobby manager ready for commands. Type \"help\" for a list.")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")

		if !scanner.Scan() {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if len(text) == 0 {
			continue
		}

		exploded := strings.Split(text, " ")
		switch exploded[0] {
		case "help":
			printHelp()
		case "auth":
			mgr.Authenticate()
			fmt.Println(mgr.Status())
		case "refresh":
			mgr.Refresh()
			fmt.Println(mgr.Status())
		case "more":
			if !mgr.HasMore() {
				fmt.Println("No more results")
				continue
			}
			mgr.LoadMore()
			fmt.Println(mgr.Status())
		case "lobbies":
			printLobbies(mgr)
		case "players":
			if len(exploded) < 2 {
				log.Error("Usage: \"players [lobbyId]\"")
				continue
			}
			if mgr.LoadPlayers(exploded[1]) == nil {
				printPlayers(mgr, exploded[1])
			}
			fmt.Println(mgr.Status())
		case "delete":
			if len(exploded) < 2 {
				log.Error("Usage: \"delete [lobbyId]\"")
				continue
			}
			mgr.Delete(exploded[1])
			fmt.Println(mgr.Status())
		case "deleteall":
			if !confirm(scanner, "This will delete ALL lobbies in the project. Continue? [y/N] ") {
				continue
			}
			mgr.DeleteAll()
			fmt.Println(mgr.Status())
		case "export":
			mgr.ExportAnalytics()
			fmt.Println(mgr.Status())
		case "stats":
			printStats(mgr)
		case "quit", "exit":
			return
		default:
			log.WithField("command", exploded[0]).Error("Unknown command, type \"help\" for a list.")
		}
	}
}

func confirm(scanner *bufio.Scanner, prompt string) bool {
	fmt.Print(prompt)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  auth                authenticate with the service account")
	fmt.Println("  refresh             fetch the first page of public lobbies")
	fmt.Println("  more                fetch the next page")
	fmt.Println("  lobbies             show the accumulated lobby list")
	fmt.Println("  players [lobbyId]   load and show a lobby's roster")
	fmt.Println("  delete [lobbyId]    delete one lobby")
	fmt.Println("  deleteall           delete every known lobby")
	fmt.Println("  export              write the analytics ledger to disk")
	fmt.Println("  stats               show analytics counters")
	fmt.Println("  quit                exit")
}

func printLobbies(mgr *manager.Manager) {
	lobbies := mgr.Lobbies()
	if len(lobbies) == 0 {
		fmt.Println("No lobbies found")
		return
	}

	fmt.Printf("Showing %d lobbies\n", len(lobbies))
	for _, lob := range lobbies {
		fmt.Printf("  %s  %-24s %d/%d players  created %s\n",
			lob.ID, lob.Name, lob.PlayerCount(), lob.MaxPlayers, lob.Created)
	}
	if mgr.HasMore() {
		fmt.Println("More results available...")
	}
}

func printPlayers(mgr *manager.Manager, lobbyID string) {
	for _, player := range mgr.Players(lobbyID) {
		fmt.Printf("  %s  %s\n", player.ID, player.Profile.Name)
		for key, entry := range player.Data {
			fmt.Printf("    %s: %s\n", key, entry.Value)
		}
	}
}

func printStats(mgr *manager.Manager) {
	fmt.Printf("Total lobbies:    %d\n", len(mgr.Lobbies()))
	fmt.Printf("Max players seen: %d\n", mgr.MaxPlayersSeen())
	fmt.Printf("Lobbies deleted:  %d\n", mgr.TotalDeletes())
	if !mgr.LastRefresh().IsZero() {
		fmt.Printf("Last refresh:     %s\n", mgr.LastRefresh().Format("15:04:05"))
	}
}

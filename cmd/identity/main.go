package main

import (
	"chat-sync/auth"
	"chat-sync/domain"
	"chat-sync/repositories"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" required:"true"`
	// Skip the token checks on save, for backends issuing opaque tokens
	Unchecked bool `envconfig:"IDENTITY_UNCHECKED" default:"false"`
}

const usage = `usage:
  identity save <participant-id> <token>
  identity show
  identity clear`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if len(args) == 0 {
		return fmt.Errorf("missing command\n%s", usage)
	}

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer db.Close()
	repository := repositories.NewIdentityRepository(db)

	switch args[0] {
	case "save":
		if len(args) != 3 {
			return fmt.Errorf("save takes 2 arguments\n%s", usage)
		}
		id, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("participant id must be a number: %w", err)
		}
		identity := domain.Identity{ID: domain.ParticipantID(id), Token: strings.TrimSpace(args[2])}
		if !config.Unchecked {
			if _, err := auth.ValidateIdentity(identity, time.Now()); err != nil {
				return err
			}
		}
		if err := repository.SaveIdentity(identity); err != nil {
			return err
		}
		fmt.Printf("Signed in as %s\n", identity.ID)
	case "show":
		identity, err := repository.GetIdentity()
		if err != nil {
			return err
		}
		printIdentity(identity)
	case "clear":
		if err := repository.ClearIdentity(); err != nil {
			return err
		}
		fmt.Println("Signed out")
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
	return nil
}

func printIdentity(identity domain.Identity) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Participant", "Token", "Roles", "Expires"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	roles, expires := "-", "-"
	if claims, err := auth.InspectToken(identity.Token); err == nil {
		roles = strings.Join(claims.Roles, ",")
		if claims.ExpiresAt != nil {
			expires = claims.ExpiresAt.Time.Local().Format(time.RFC822)
		}
	}
	table.Append([]string{identity.ID.String(), mask(identity.Token), roles, expires})
	table.Render()
}

func mask(token string) string {
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "…" + token[len(token)-4:]
}

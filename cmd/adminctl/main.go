package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/term"

	"github.com/vincentagber/real-estate-crm/internal/domain"
	"github.com/vincentagber/real-estate-crm/internal/repository"
	"github.com/vincentagber/real-estate-crm/internal/repository/postgres"
	"github.com/vincentagber/real-estate-crm/pkg/config"
	"github.com/vincentagber/real-estate-crm/pkg/crypto"
)

// adminctl seeds admin accounts straight into the identity store. Signup
// only creates agents, so the first admin has to come from here.
func main() {
	if len(os.Args) < 2 || os.Args[1] != "create-admin" {
		printUsage()
		os.Exit(1)
	}
	if err := commandCreateAdmin(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandCreateAdmin(args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ExitOnError)
	username := fs.String("username", "", "admin username")
	firstName := fs.String("first-name", "", "first name")
	lastName := fs.String("last-name", "", "last name")
	email := fs.String("email", "", "email address")
	phone := fs.String("phone", "", "phone number")
	password := fs.String("password", "", "password (supply to avoid prompt)")
	fs.Parse(args)

	for name, value := range map[string]string{
		"--username":   *username,
		"--first-name": *firstName,
		"--last-name":  *lastName,
		"--email":      *email,
		"--phone":      *phone,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	secret := strings.TrimSpace(*password)
	if secret == "" {
		fmt.Print("Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Print("\n")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		secret = string(raw)
	}
	if secret == "" {
		return errors.New("password must not be empty")
	}

	hash, err := crypto.HashPassword(secret)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	cfg := config.LoadAPIConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	repo := postgres.New(pool)
	user := &domain.User{
		ID:               uuid.NewString(),
		Username:         *username,
		PasswordHash:     hash,
		Email:            *email,
		Phone:            *phone,
		FirstName:        *firstName,
		LastName:         *lastName,
		YearStarted:      time.Now().Year(),
		LicenseID:        "n/a",
		Brokerage:        "n/a",
		BrokerageAddress: "n/a",
		BrokerageNumber:  "n/a",
		AccountType:      domain.AccountTypeAdmin,
		Activated:        true,
		CreatedAt:        time.Now().UTC(),
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("username %q already exists", *username)
		}
		return fmt.Errorf("create admin: %w", err)
	}

	fmt.Printf("admin %s created (%s)\n", user.Username, user.ID)
	return nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: adminctl create-admin --username <name> --first-name <f> --last-name <l> --email <e> --phone <p> [--password <pw>]")
}

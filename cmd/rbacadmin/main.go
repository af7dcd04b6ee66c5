// Command rbacadmin bootstraps the user directory: it creates a user record
// directly against the configured credential store, bypassing the HTTP layer.
// Intended for seeding the first Admin before any token can be issued.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/allenzhangsg/rbac/internal/server"
	"github.com/allenzhangsg/rbac/internal/server/auth"
	"github.com/allenzhangsg/rbac/internal/server/config"
	"github.com/allenzhangsg/rbac/internal/server/store"
	"github.com/allenzhangsg/rbac/internal/server/users"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
	fmt.Println("Success!")
}

func run(ctx context.Context) error {
	cfg := config.LoadConfig()

	st, err := server.NewStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store init error: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Println("Enter user name")

	username, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("user name must not be empty")
	}

	fmt.Println("Enter password")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return err
	}

	if _, err := st.QueryByUsername(ctx, username); err == nil {
		return fmt.Errorf("user %q already exists", username)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	hash, err := auth.HashPassword(string(password))
	if err != nil {
		return err
	}

	id, err := st.NextID(ctx)
	if err != nil {
		return err
	}

	item := &store.UserItem{
		ID:           id,
		Username:     username,
		PasswordHash: hash,
		Role:         users.RoleAdmin,
		Permissions: []string{
			users.CanCreateUser,
			users.CanReadUser,
			users.CanUpdateUser,
			users.CanDeleteUser,
		},
	}

	if err := st.Put(ctx, item); err != nil {
		return err
	}

	fmt.Printf("created user %q with id %d\n", username, id)
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/services"
	"callrelay/pkg/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "roomtoken",
		Short:         "Mint and inspect callrelay admission tokens",
		Long:          "roomtoken signs short-lived room admission tokens for testing and deployments, and decodes existing ones. The signing secret comes from --secret, the CALLRELAY_JWT_SECRET environment variable, or the relay config file, in that order.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().String("secret", "", "signing secret (overrides env and config)")
	root.PersistentFlags().String("issuer", "", "token issuer (overrides config)")
	root.PersistentFlags().String("config", "", "path to a relay config file")

	root.AddCommand(
		newMintCmd(),
		newInspectCmd(),
	)

	return root
}

type signingEnv struct {
	secret string
	issuer string
}

func resolveSigningEnv(cmd *cobra.Command) (*signingEnv, error) {
	secret, _ := cmd.Flags().GetString("secret")
	issuer, _ := cmd.Flags().GetString("issuer")
	configPath, _ := cmd.Flags().GetString("config")

	// Load applies CALLRELAY_* env overrides even when the path does
	// not exist, so the tool and the relay resolve the same secret.
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if secret == "" {
		secret = cfg.Auth.JWTSecret
	}
	if issuer == "" {
		issuer = cfg.Auth.Issuer
	}
	if secret == "" {
		return nil, fmt.Errorf("no signing secret: pass --secret or set CALLRELAY_JWT_SECRET")
	}

	return &signingEnv{secret: secret, issuer: issuer}, nil
}

func newMintCmd() *cobra.Command {
	var (
		identity    string
		room        string
		displayName string
		host        bool
		ttl         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a signed admission token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := resolveSigningEnv(cmd)
			if err != nil {
				return err
			}

			admission := services.NewAdmissionService(env.secret, env.issuer, ttl)
			token, err := admission.Mint(&domain.AdmissionClaim{
				Identity:    identity,
				RoomID:      domain.RoomID(room),
				DisplayName: displayName,
				IsHost:      host,
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&identity, "identity", "", "client identity (sub claim)")
	cmd.Flags().StringVar(&room, "room", "", "room the token grants access to")
	cmd.Flags().StringVar(&displayName, "display-name", "", "optional display name")
	cmd.Flags().BoolVar(&host, "host", false, "grant host privileges")
	cmd.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "token lifetime")
	cmd.MarkFlagRequired("identity")
	cmd.MarkFlagRequired("room")

	return cmd
}

// inspection is the printed view of a decoded token. Valid is a pointer
// so --no-verify output carries no verdict at all.
type inspection struct {
	Identity    string     `json:"identity"`
	Room        string     `json:"room"`
	RoomJoin    bool       `json:"room_join"`
	IsHost      bool       `json:"is_host"`
	DisplayName string     `json:"display_name,omitempty"`
	Issuer      string     `json:"issuer,omitempty"`
	IssuedAt    *time.Time `json:"issued_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Valid       *bool      `json:"valid,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func newInspectCmd() *cobra.Command {
	var noVerify bool

	cmd := &cobra.Command{
		Use:   "inspect <token>",
		Short: "Decode a token and show its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claims := &services.RoomClaims{}
			if _, _, err := jwt.NewParser().ParseUnverified(args[0], claims); err != nil {
				return fmt.Errorf("not a decodable token: %w", err)
			}

			out := inspection{
				Identity:    claims.Subject,
				Room:        claims.Room,
				RoomJoin:    claims.RoomJoin,
				IsHost:      claims.IsHost,
				DisplayName: claims.DisplayName,
				Issuer:      claims.Issuer,
			}
			if claims.IssuedAt != nil {
				out.IssuedAt = &claims.IssuedAt.Time
			}
			if claims.ExpiresAt != nil {
				out.ExpiresAt = &claims.ExpiresAt.Time
			}

			if !noVerify {
				env, err := resolveSigningEnv(cmd)
				if err != nil {
					return err
				}

				admission := services.NewAdmissionService(env.secret, env.issuer, time.Minute)
				valid := true
				if _, err := admission.Validate(args[0], time.Now()); err != nil {
					valid = false
					out.Error = err.Error()
				}
				out.Valid = &valid
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "decode without checking signature, issuer or expiry")

	return cmd
}

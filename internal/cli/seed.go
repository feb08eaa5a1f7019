package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wave745/goontest-sub001/internal/db"
	"github.com/wave745/goontest-sub001/internal/models"
	"github.com/wave745/goontest-sub001/utils"
)

// Fixture is the seed file layout.
type Fixture struct {
	Users   []FixtureUser   `yaml:"users"`
	Posts   []FixturePost   `yaml:"posts"`
	Unlocks []FixtureUnlock `yaml:"unlocks"`
}

type FixtureUser struct {
	ID     string `yaml:"id"`
	Handle string `yaml:"handle"`
	Wallet string `yaml:"wallet"`
}

type FixturePost struct {
	ID         string    `yaml:"id"`
	Creator    string    `yaml:"creator"`
	Title      string    `yaml:"title"`
	Caption    string    `yaml:"caption"`
	MediaType  string    `yaml:"media_type"`
	Media      string    `yaml:"media"`
	Thumbnail  string    `yaml:"thumbnail"`
	Price      uint64    `yaml:"price_lamports"`
	Visibility string    `yaml:"visibility"`
	Status     string    `yaml:"status"`
	CreatedAt  time.Time `yaml:"created_at"`
}

type FixtureUnlock struct {
	User      string `yaml:"user"`
	Post      string `yaml:"post"`
	Amount    uint64 `yaml:"amount_lamports"`
	Signature string `yaml:"signature"`
}

// SeedResult counts what a seed run inserted and skipped.
type SeedResult struct {
	Users   int `json:"users"`
	Posts   int `json:"posts"`
	Unlocks int `json:"unlocks"`
	Skipped int `json:"skipped"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load users, posts and unlocks from a YAML fixture",
		Long: `Load a YAML fixture into the configured store. Existing users and unlocks
are skipped, so a fixture can be applied more than once.

Examples:
  paywall seed ./fixtures/demo.yaml
  paywall seed ./fixtures/demo.yaml --format json`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fx, err := ReadFixture(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read fixture", err)
			}
			cfg, log, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := db.Open(cmd.Context(), cfg.Storage)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open store", err)
			}
			defer st.Close()

			res, err := Seed(cmd.Context(), st, fx, log)
			if err != nil {
				return WrapExitError(ExitFailure, "seed failed", err)
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users, %d posts, %d unlocks (%d skipped)\n",
				res.Users, res.Posts, res.Unlocks, res.Skipped)
			return nil
		},
	}
}

// ReadFixture parses a YAML fixture file.
func ReadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &fx, nil
}

// Seed writes fx into st. Duplicates are skipped; any other error aborts.
func Seed(ctx context.Context, st db.Store, fx *Fixture, log *utils.Logger) (SeedResult, error) {
	var res SeedResult

	for _, u := range fx.Users {
		err := st.CreateUser(ctx, &models.User{ID: u.ID, Handle: u.Handle, WalletAddress: u.Wallet})
		switch {
		case errors.Is(err, db.ErrDuplicateUser):
			log.Debug("user %s exists, skipped", u.Handle)
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("user %s: %w", u.Handle, err)
		default:
			res.Users++
		}
	}

	for _, p := range fx.Posts {
		if p.ID != "" {
			if _, err := st.GetPost(ctx, p.ID); err == nil {
				log.Debug("post %s exists, skipped", p.ID)
				res.Skipped++
				continue
			}
		}
		post := &models.Post{
			ID:            p.ID,
			CreatorID:     p.Creator,
			Title:         p.Title,
			Caption:       p.Caption,
			MediaType:     models.MediaType(p.MediaType),
			MediaPath:     p.Media,
			ThumbnailPath: p.Thumbnail,
			PriceLamports: p.Price,
			Visibility:    models.Visibility(p.Visibility),
			Status:        models.PostStatus(p.Status),
			CreatedAt:     p.CreatedAt,
		}
		if err := st.CreatePost(ctx, post); err != nil {
			return res, fmt.Errorf("post %q: %w", p.Title, err)
		}
		res.Posts++
	}

	for _, u := range fx.Unlocks {
		_, err := st.RecordPurchase(ctx, models.UnlockRecord{
			UserID:         u.User,
			PostID:         u.Post,
			AmountLamports: u.Amount,
			TxnSignature:   u.Signature,
		})
		switch {
		case errors.Is(err, db.ErrDuplicateUnlock), errors.Is(err, db.ErrDuplicateSignature):
			log.Debug("unlock %s|%s exists, skipped", u.User, u.Post)
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("unlock %s|%s: %w", u.User, u.Post, err)
		default:
			res.Unlocks++
		}
	}
	return res, nil
}

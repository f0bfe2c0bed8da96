// Command seed loads demo officers, fuel cards and WEX transactions from a
// JSON file. Re-running it is safe: existing users and cards are kept and
// transactions are upserted by external id.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"grts/internal/dto"
	"grts/internal/models"
	"grts/internal/repository"
	"grts/internal/service"
	"grts/migrations"
	"grts/pkg/auth"
	"grts/pkg/config"
	"grts/pkg/logger"
	"grts/pkg/postgres"

	"go.uber.org/zap"
)

type seedUser struct {
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Password string   `json:"password"`
	Role     string   `json:"role"`
	Cards    []string `json:"cards"`
}

type seedData struct {
	Users        []seedUser        `json:"users"`
	Transactions []json.RawMessage `json:"transactions"`
}

func loadSeed(path string) (*seedData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var data seedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &data, nil
}

func main() {
	path := flag.String("file", "cmd/seed/seed.json", "seed data file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.Logger.Level, cfg.Logger.Format); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Named("seed")

	data, err := loadSeed(*path)
	if err != nil {
		appLogger.Fatal("Failed to load seed data", zap.String("file", *path), zap.Error(err))
	}

	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db, migrations.FS, appLogger); err != nil {
		appLogger.Fatal("Failed to apply migrations", zap.Error(err))
	}

	s := &seeder{
		users:  repository.NewUserRepository(db, appLogger),
		cards:  repository.NewCardRepository(db, appLogger),
		txs:    repository.NewTransactionRepository(db, appLogger),
		jwt:    auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration, cfg.JWT.RefreshExp),
		logger: appLogger,
	}

	appLogger.Info("Starting database seeding", zap.String("file", *path))
	if err := s.run(ctx, data); err != nil {
		appLogger.Fatal("Seeding failed", zap.Error(err))
	}
	appLogger.Info("Database seeding completed")
}

type seeder struct {
	users  repository.UserStore
	cards  repository.CardStore
	txs    repository.TransactionStore
	jwt    *auth.JWTManager
	logger *zap.Logger
}

// ensureUser registers u unless the email is taken. The first user ever
// registered becomes the manager.
func (s *seeder) ensureUser(ctx context.Context, authService *service.AuthService, u seedUser) (*models.User, error) {
	_, err := authService.Register(ctx, &dto.RegisterRequest{Email: u.Email, Name: u.Name, Password: u.Password})
	if err != nil && !errors.Is(err, service.ErrUserExists) {
		return nil, fmt.Errorf("register %s: %w", u.Email, err)
	}
	return s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(u.Email)))
}

func (s *seeder) run(ctx context.Context, data *seedData) error {
	authService := service.NewAuthService(s.users, s.jwt, s.logger)
	userService := service.NewUserService(s.users, s.cards, s.logger)
	ingest := service.NewIngestService(s.txs, s.cards, nil, nil, config.WEXConfig{}, s.logger)

	seeded := make([]*models.User, 0, len(data.Users))
	var manager *service.Actor
	for _, u := range data.Users {
		user, err := s.ensureUser(ctx, authService, u)
		if err != nil {
			return err
		}
		seeded = append(seeded, user)
		if user.Role == models.RoleManager && manager == nil {
			manager = &service.Actor{UserID: user.ID, Role: user.Role}
		}
	}

	for i, u := range data.Users {
		user := seeded[i]
		if u.Role != "" && u.Role != string(user.Role) && manager != nil {
			if err := userService.UpdateRole(ctx, *manager, user.ID, dto.UpdateRoleRequest{Role: u.Role}); err != nil {
				return fmt.Errorf("set role of %s: %w", u.Email, err)
			}
		}

		actor := service.Actor{UserID: user.ID, Role: user.Role}
		for _, last4 := range u.Cards {
			_, err := userService.AddCard(ctx, actor, dto.CardRequest{CardLast4: last4})
			if err != nil && !errors.Is(err, service.ErrCardTaken) {
				return fmt.Errorf("add card %s for %s: %w", last4, u.Email, err)
			}
		}
	}

	imported := 0
	for _, raw := range data.Transactions {
		var payload dto.WexTransaction
		if err := json.Unmarshal(raw, &payload); err != nil {
			s.logger.Warn("Skipping malformed transaction", zap.Error(err))
			continue
		}
		if _, err := ingest.Ingest(ctx, payload, raw); err != nil {
			s.logger.Warn("Skipping transaction", zap.String("id", string(payload.ID)), zap.Error(err))
			continue
		}
		imported++
	}

	s.logger.Info("Seeded",
		zap.Int("users", len(data.Users)),
		zap.Int("transactions", imported),
	)
	return nil
}

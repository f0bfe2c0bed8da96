package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"grts/internal/dto"
	"grts/internal/models"
	"grts/internal/repository/memory"
	"grts/pkg/auth"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestAuthRegisterLoginRefresh(t *testing.T) {
	store := memory.New()
	jwt := auth.NewJWTManager("test-secret", time.Hour, 24*time.Hour)
	svc := NewAuthService(store.Users, jwt, zap.NewNop())
	ctx := context.Background()

	first, err := svc.Register(ctx, &dto.RegisterRequest{Email: "Boss@Example.com", Name: "Boss", Password: "password1"})
	if err != nil {
		t.Fatal(err)
	}
	if first.User.Role != string(models.RoleManager) || first.User.Email != "boss@example.com" {
		t.Errorf("first user = %+v", first.User)
	}

	second, err := svc.Register(ctx, &dto.RegisterRequest{Email: "olive@example.com", Name: "Olive", Password: "password2"})
	if err != nil {
		t.Fatal(err)
	}
	if second.User.Role != string(models.RoleOfficer) {
		t.Errorf("second user role = %s", second.User.Role)
	}

	if _, err := svc.Register(ctx, &dto.RegisterRequest{Email: "olive@example.com", Name: "Dup", Password: "password3"}); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate: err = %v", err)
	}
	if _, err := svc.Register(ctx, &dto.RegisterRequest{Email: "nope", Name: "X", Password: "short"}); !errors.Is(err, ErrValidation) {
		t.Errorf("invalid: err = %v", err)
	}

	if _, err := svc.Login(ctx, &dto.LoginRequest{Email: "olive@example.com", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("bad password: err = %v", err)
	}
	login, err := svc.Login(ctx, &dto.LoginRequest{Email: "olive@example.com", Password: "password2"})
	if err != nil {
		t.Fatal(err)
	}
	claims, err := jwt.ValidateToken(login.AccessToken)
	if err != nil || claims.Role != string(models.RoleOfficer) {
		t.Fatalf("claims = %+v, err = %v", claims, err)
	}

	officerID := uuid.MustParse(second.User.ID)
	if err := store.Users.UpdateRole(ctx, officerID, models.RoleManager); err != nil {
		t.Fatal(err)
	}
	refreshed, err := svc.RefreshToken(ctx, login.RefreshToken)
	if err != nil {
		t.Fatal(err)
	}
	if refreshed.User.Role != string(models.RoleManager) {
		t.Errorf("role after refresh = %s", refreshed.User.Role)
	}
	if _, err := svc.RefreshToken(ctx, login.AccessToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("access token as refresh: err = %v", err)
	}
}

func TestUserServiceCards(t *testing.T) {
	f := newFixture(t)
	svc := NewUserService(f.store.Users, f.store.Cards, zap.NewNop())
	ctx := context.Background()
	officer := f.officerActor()

	if _, err := svc.AddCard(ctx, officer, dto.CardRequest{CardLast4: "4242"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddCard(ctx, officer, dto.CardRequest{CardLast4: "4242"}); err != nil {
		t.Errorf("re-add own card: %v", err)
	}
	if _, err := svc.AddCard(ctx, f.managerActor(), dto.CardRequest{CardLast4: "4242"}); !errors.Is(err, ErrCardTaken) {
		t.Errorf("other officer's card: err = %v", err)
	}
	if _, err := svc.AddCard(ctx, officer, dto.CardRequest{CardLast4: "42a2"}); !errors.Is(err, ErrValidation) {
		t.Errorf("bad card: err = %v", err)
	}

	cards, err := svc.Cards(ctx, officer)
	if err != nil || len(cards) != 1 {
		t.Fatalf("cards = %+v, err = %v", cards, err)
	}

	if err := svc.RemoveCard(ctx, officer, "4242"); err != nil {
		t.Fatal(err)
	}
	if err := svc.RemoveCard(ctx, officer, "4242"); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("second remove: err = %v", err)
	}
}

func TestUserServiceRoles(t *testing.T) {
	f := newFixture(t)
	svc := NewUserService(f.store.Users, f.store.Cards, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.List(ctx, f.officerActor()); !errors.Is(err, ErrForbidden) {
		t.Errorf("officer list: err = %v", err)
	}
	users, err := svc.List(ctx, f.managerActor())
	if err != nil || len(users) != 2 {
		t.Fatalf("users = %+v, err = %v", users, err)
	}

	if err := svc.UpdateRole(ctx, f.managerActor(), f.officer.ID, dto.UpdateRoleRequest{Role: "admin"}); !errors.Is(err, ErrValidation) {
		t.Errorf("bad role: err = %v", err)
	}
	if err := svc.UpdateRole(ctx, f.managerActor(), uuid.New(), dto.UpdateRoleRequest{Role: "manager"}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user: err = %v", err)
	}
	if err := svc.UpdateRole(ctx, f.managerActor(), f.officer.ID, dto.UpdateRoleRequest{Role: "manager"}); err != nil {
		t.Fatal(err)
	}
	me, err := svc.Me(ctx, f.officerActor())
	if err != nil || me.Role != "manager" {
		t.Errorf("me = %+v, err = %v", me, err)
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pearl/internal/util"
	"pearl/pkg/auth"
	"pearl/pkg/domain"
	"pearl/pkg/session"
	"pearl/pkg/store"
)

const dateLayout = "2006-01-02"

type RegisterInput struct {
	Username        string `json:"username" validate:"required,max=150"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Phone           string `json:"phone" validate:"required,phone"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required"`
	FirstName       string `json:"firstName" validate:"max=150"`
	LastName        string `json:"lastName" validate:"max=150"`
	DateOfBirth     string `json:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
}

// Session is a freshly issued token pair.
type Session struct {
	Account      domain.Account `json:"account"`
	AccessToken  string         `json:"accessToken"`
	ExpiresAt    time.Time      `json:"expiresAt"`
	RefreshToken string         `json:"refreshToken"`
}

// AccountPatch updates the caller's own account. Nil fields are left as is.
type AccountPatch struct {
	Username           *string `json:"username" validate:"omitempty,max=150"`
	Email              *string `json:"email" validate:"omitempty,email,max=254"`
	FirstName          *string `json:"firstName" validate:"omitempty,max=150"`
	LastName           *string `json:"lastName" validate:"omitempty,max=150"`
	DateOfBirth        *string `json:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
	CurrentPassword    *string `json:"currentPassword"`
	NewPassword        *string `json:"newPassword"`
	NewPasswordConfirm *string `json:"newPasswordConfirm"`
}

type ProfilePatch struct {
	Avatar                 *string        `json:"avatar" validate:"omitempty,max=255"`
	Bio                    *string        `json:"bio" validate:"omitempty,max=500"`
	Address                *string        `json:"address" validate:"omitempty,max=255"`
	City                   *string        `json:"city" validate:"omitempty,max=100"`
	Country                *string        `json:"country" validate:"omitempty,max=100"`
	PostalCode             *string        `json:"postalCode" validate:"omitempty,max=20"`
	Preferences            map[string]any `json:"preferences"`
	NewsletterSubscription *bool          `json:"newsletterSubscription"`
}

// Register creates an unverified account with an empty profile and issues
// its first verification code.
func (a *App) Register(ctx context.Context, in RegisterInput) (domain.Account, error) {
	in.Username = trim(in.Username)
	in.Email = normalizeEmail(in.Email)
	in.Phone = normalizePhone(in.Phone)
	in.FirstName = trim(in.FirstName)
	in.LastName = trim(in.LastName)
	in.DateOfBirth = trim(in.DateOfBirth)
	if err := check(in); err != nil {
		return domain.Account{}, err
	}
	if in.Password != in.PasswordConfirm {
		return domain.Account{}, invalid("passwordConfirm", "passwords do not match")
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return domain.Account{}, invalid("password", err.Error())
	}
	dob, err := parseDate(in.DateOfBirth)
	if err != nil {
		return domain.Account{}, invalid("dateOfBirth", "use the 2006-01-02 format")
	}

	exists, err := a.store.HasAccountPhone(in.Phone)
	if err != nil {
		return domain.Account{}, fmt.Errorf("check phone: %w", err)
	}
	if exists {
		return domain.Account{}, conflict("phone", "phone number already registered")
	}
	exists, err = a.store.HasAccountEmail(in.Email)
	if err != nil {
		return domain.Account{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.Account{}, conflict("email", "email already registered")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}
	now := a.clock()
	acc := domain.Account{
		ID:           util.NewID(),
		Username:     in.Username,
		Email:        in.Email,
		Phone:        in.Phone,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		DateOfBirth:  dob,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	code, err := a.newCode(acc.ID)
	if err != nil {
		return domain.Account{}, err
	}
	if err := a.store.RegisterAccount(acc, domain.NewProfile(acc.ID, now), code); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Account{}, conflict("", "phone or email already registered")
		}
		return domain.Account{}, fmt.Errorf("register account: %w", err)
	}
	a.log(ctx).Info("account_registered", "account_id", acc.ID)
	a.deliverCode(ctx, acc, code)
	return acc, nil
}

// Login authenticates by phone and password.
func (a *App) Login(ctx context.Context, phone, password string) (Session, error) {
	phone = normalizePhone(phone)
	acc, ok, err := a.store.GetAccountByPhone(phone)
	if err != nil {
		return Session{}, fmt.Errorf("fetch account: %w", err)
	}
	if !ok {
		auth.CheckDummyPassword(password)
		return Session{}, ErrUnauthorized
	}
	if !auth.CheckPassword(password, acc.PasswordHash) || !acc.IsActive {
		return Session{}, ErrUnauthorized
	}
	return a.issueSession(ctx, acc)
}

// Refresh rotates a refresh token and issues a new token pair.
func (a *App) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	refreshToken = trim(refreshToken)
	if refreshToken == "" {
		return Session{}, invalid("refreshToken", "this field is required")
	}
	accountID, next, err := a.refresh.Rotate(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) || errors.Is(err, session.ErrRefreshTokenReplay) {
			return Session{}, &Error{Kind: ErrUnauthorized, Message: "invalid refresh token"}
		}
		return Session{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	acc, ok, err := a.store.GetAccountByID(accountID)
	if err != nil {
		return Session{}, fmt.Errorf("fetch account: %w", err)
	}
	if !ok || !acc.IsActive {
		_ = a.refresh.Revoke(ctx, next)
		return Session{}, &Error{Kind: ErrUnauthorized, Message: "invalid refresh token"}
	}
	access, expires, err := a.tokens.Issue(acc)
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}
	return Session{Account: acc, AccessToken: access, ExpiresAt: expires, RefreshToken: next}, nil
}

// Logout revokes the access token and, when given, the refresh token family.
func (a *App) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := a.tokens.Revoke(accessToken); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	if refreshToken = trim(refreshToken); refreshToken != "" {
		if err := a.refresh.Revoke(ctx, refreshToken); err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
	}
	return nil
}

// AccountFromToken resolves the active account an access token belongs to.
func (a *App) AccountFromToken(ctx context.Context, token string) (domain.Account, error) {
	claims, err := a.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, session.ErrInvalidToken) || errors.Is(err, session.ErrRevokedToken) {
			return domain.Account{}, &Error{Kind: ErrUnauthorized, Message: "invalid access token"}
		}
		return domain.Account{}, fmt.Errorf("verify access token: %w", err)
	}
	acc, ok, err := a.store.GetAccountByID(claims.Subject)
	if err != nil {
		return domain.Account{}, fmt.Errorf("fetch account: %w", err)
	}
	if !ok || !acc.IsActive {
		return domain.Account{}, &Error{Kind: ErrUnauthorized, Message: "invalid access token"}
	}
	return acc, nil
}

func (a *App) issueSession(ctx context.Context, acc domain.Account) (Session, error) {
	access, expires, err := a.tokens.Issue(acc)
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := a.refresh.Issue(ctx, acc.ID)
	if err != nil {
		return Session{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return Session{Account: acc, AccessToken: access, ExpiresAt: expires, RefreshToken: refresh}, nil
}

func (a *App) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	acc, ok, err := a.store.GetAccountByID(id)
	if err != nil {
		return domain.Account{}, fmt.Errorf("fetch account: %w", err)
	}
	if !ok {
		return domain.Account{}, notFound("account")
	}
	return acc, nil
}

// UpdateAccount applies patch to the account. Changing the password revokes
// every outstanding session of the account.
func (a *App) UpdateAccount(ctx context.Context, id string, patch AccountPatch) (domain.Account, error) {
	trimPtr(patch.Username)
	if patch.Email != nil {
		*patch.Email = normalizeEmail(*patch.Email)
	}
	trimPtr(patch.FirstName)
	trimPtr(patch.LastName)
	trimPtr(patch.DateOfBirth)
	if err := check(patch); err != nil {
		return domain.Account{}, err
	}
	acc, err := a.GetAccount(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}

	columns := []string{"updated_at"}
	if patch.Username != nil {
		if *patch.Username == "" {
			return domain.Account{}, invalid("username", "this field is required")
		}
		acc.Username = *patch.Username
		columns = append(columns, "username")
	}
	if patch.Email != nil && *patch.Email != acc.Email {
		if *patch.Email == "" {
			return domain.Account{}, invalid("email", "this field is required")
		}
		exists, err := a.store.HasAccountEmail(*patch.Email)
		if err != nil {
			return domain.Account{}, fmt.Errorf("check email: %w", err)
		}
		if exists {
			return domain.Account{}, conflict("email", "email already registered")
		}
		acc.Email = *patch.Email
		columns = append(columns, "email")
	}
	if patch.FirstName != nil {
		acc.FirstName = *patch.FirstName
		columns = append(columns, "first_name")
	}
	if patch.LastName != nil {
		acc.LastName = *patch.LastName
		columns = append(columns, "last_name")
	}
	if patch.DateOfBirth != nil {
		dob, err := parseDate(*patch.DateOfBirth)
		if err != nil {
			return domain.Account{}, invalid("dateOfBirth", "use the 2006-01-02 format")
		}
		acc.DateOfBirth = dob
		columns = append(columns, "date_of_birth")
	}
	passwordChanged := false
	if patch.NewPassword != nil {
		if patch.CurrentPassword == nil || !auth.CheckPassword(*patch.CurrentPassword, acc.PasswordHash) {
			return domain.Account{}, invalid("currentPassword", "current password is incorrect")
		}
		if patch.NewPasswordConfirm == nil || *patch.NewPasswordConfirm != *patch.NewPassword {
			return domain.Account{}, invalid("newPasswordConfirm", "passwords do not match")
		}
		if err := auth.ValidatePassword(*patch.NewPassword); err != nil {
			return domain.Account{}, invalid("newPassword", err.Error())
		}
		hash, err := auth.HashPassword(*patch.NewPassword)
		if err != nil {
			return domain.Account{}, fmt.Errorf("hash password: %w", err)
		}
		acc.PasswordHash = hash
		columns = append(columns, "password_hash")
		passwordChanged = true
	}

	acc.UpdatedAt = a.clock()
	if err := a.store.UpdateAccountColumns(acc, columns...); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Account{}, conflict("email", "email already registered")
		}
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, notFound("account")
		}
		return domain.Account{}, fmt.Errorf("save account: %w", err)
	}
	if passwordChanged {
		if err := a.revokeAccountSessions(ctx, acc.ID); err != nil {
			return domain.Account{}, err
		}
	}
	// Re-read so flags changed concurrently are reported as stored.
	return a.GetAccount(ctx, acc.ID)
}

// DeleteAccount removes the account with its profile, codes, orders and
// reviews, and revokes its sessions.
func (a *App) DeleteAccount(ctx context.Context, id string) error {
	if err := a.store.DeleteAccount(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("account")
		}
		return fmt.Errorf("delete account: %w", err)
	}
	if err := a.revokeAccountSessions(ctx, id); err != nil {
		return err
	}
	a.log(ctx).Info("account_deleted", "account_id", id)
	return nil
}

func (a *App) revokeAccountSessions(ctx context.Context, accountID string) error {
	if err := a.tokens.RevokeAccount(accountID, a.clock()); err != nil {
		return fmt.Errorf("revoke access tokens: %w", err)
	}
	if err := a.refresh.RevokeAccount(ctx, accountID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

func (a *App) GetProfile(ctx context.Context, accountID string) (domain.Profile, error) {
	p, ok, err := a.store.GetProfile(accountID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("fetch profile: %w", err)
	}
	if !ok {
		return domain.Profile{}, notFound("profile")
	}
	return p, nil
}

func (a *App) UpdateProfile(ctx context.Context, accountID string, patch ProfilePatch) (domain.Profile, error) {
	for _, f := range []*string{patch.Avatar, patch.Bio, patch.Address, patch.City, patch.Country, patch.PostalCode} {
		trimPtr(f)
	}
	if err := check(patch); err != nil {
		return domain.Profile{}, err
	}
	p, err := a.GetProfile(ctx, accountID)
	if err != nil {
		return domain.Profile{}, err
	}
	setString(&p.Avatar, patch.Avatar)
	setString(&p.Bio, patch.Bio)
	setString(&p.Address, patch.Address)
	setString(&p.City, patch.City)
	setString(&p.Country, patch.Country)
	setString(&p.PostalCode, patch.PostalCode)
	if patch.Preferences != nil {
		p.Preferences = patch.Preferences
	}
	if patch.NewsletterSubscription != nil {
		p.NewsletterSubscription = *patch.NewsletterSubscription
	}
	p.UpdatedAt = a.clock()
	if err := a.store.SaveProfile(p); err != nil {
		return domain.Profile{}, fmt.Errorf("save profile: %w", err)
	}
	return p, nil
}

func trim(s string) string { return strings.TrimSpace(s) }

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizePhone drops the separators people type into phone numbers.
func normalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.', '\t':
			return -1
		}
		return r
	}, phone)
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"pearl/internal/util"
	"pearl/pkg/domain"
	"pearl/pkg/notify"
)

const codeDigits = 6

var codeSpace = big.NewInt(1_000_000)

// generateCode returns a uniformly random 6-digit code; leading zeros are kept.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

func (a *App) newCode(accountID string) (domain.VerificationCode, error) {
	code, err := generateCode()
	if err != nil {
		return domain.VerificationCode{}, err
	}
	return domain.VerificationCode{
		ID:        util.NewID(),
		AccountID: accountID,
		Code:      code,
		CreatedAt: a.clock(),
	}, nil
}

// deliverCode logs the code and hands it to the notifier. Delivery failures
// are logged and never reach the caller.
func (a *App) deliverCode(ctx context.Context, acc domain.Account, code domain.VerificationCode) {
	logger := a.log(ctx)
	logger.Info("verification_code_issued",
		"account_id", acc.ID,
		"phone", acc.Phone,
		"code", code.Code,
	)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.notifyTimeout)
	defer cancel()
	msg := notify.Message{
		ID:        code.ID,
		Channel:   notify.ChannelSMS,
		Recipient: acc.Phone,
		Purpose:   notify.PurposeVerification,
		Code:      code.Code,
		CreatedAt: code.CreatedAt,
	}
	if err := a.notifier.Notify(ctx, msg); err != nil {
		logger.Warn("verification_code_delivery_failed", "account_id", acc.ID, "err", err)
	}
}

// RequestCode issues a fresh code for the account registered with phone.
// Earlier unused codes stay valid until they expire.
func (a *App) RequestCode(ctx context.Context, phone string) error {
	phone = normalizePhone(phone)
	if phone == "" {
		return invalid("phone", "this field is required")
	}
	acc, ok, err := a.store.GetAccountByPhone(phone)
	if err != nil {
		return fmt.Errorf("fetch account: %w", err)
	}
	if !ok {
		return notFound("account")
	}
	code, err := a.newCode(acc.ID)
	if err != nil {
		return err
	}
	if err := a.store.SaveVerificationCode(code); err != nil {
		return fmt.Errorf("save verification code: %w", err)
	}
	a.deliverCode(ctx, acc, code)
	return nil
}

// VerifyCode validates a submitted code for phone. On success the code is
// consumed and the account marked verified; failures leave state untouched.
func (a *App) VerifyCode(ctx context.Context, phone, code string) (domain.Account, error) {
	phone = normalizePhone(phone)
	code = trim(code)
	var fields []FieldError
	if phone == "" {
		fields = append(fields, FieldError{Field: "phone", Reason: "this field is required"})
	}
	if code == "" {
		fields = append(fields, FieldError{Field: "code", Reason: "this field is required"})
	}
	if len(fields) > 0 {
		return domain.Account{}, invalidFields(fields)
	}

	acc, ok, err := a.store.GetAccountByPhone(phone)
	if err != nil {
		return domain.Account{}, fmt.Errorf("fetch account: %w", err)
	}
	if !ok {
		return domain.Account{}, notFound("account")
	}
	vc, ok, err := a.store.LatestUnusedCode(acc.ID, code)
	if err != nil {
		return domain.Account{}, fmt.Errorf("fetch verification code: %w", err)
	}
	if !ok {
		return domain.Account{}, notFound("verification code")
	}
	now := a.clock()
	if vc.Expired(now) {
		return domain.Account{}, &Error{Kind: ErrExpired, Message: "verification code expired"}
	}
	claimed, err := a.store.ConsumeVerificationCode(vc.ID, acc.ID, now)
	if err != nil {
		return domain.Account{}, fmt.Errorf("consume verification code: %w", err)
	}
	if !claimed {
		// Lost the race against a concurrent attempt.
		return domain.Account{}, notFound("verification code")
	}
	acc, ok, err = a.store.GetAccountByID(acc.ID)
	if err != nil {
		return domain.Account{}, fmt.Errorf("fetch account: %w", err)
	}
	if !ok {
		return domain.Account{}, notFound("account")
	}
	a.log(ctx).Info("account_verified", "account_id", acc.ID)
	return acc, nil
}

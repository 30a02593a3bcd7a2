// Package auth verifies game account credentials against the server's
// account database using the 3.3.5a SRP-6 scheme and hands out short-lived
// bearer tokens for the supervisor API.
//
// The package never exposes database detail to callers' users: anything the
// database does wrong comes back wrapped in ErrUnavailable, and the HTTP
// layer turns that into a generic 403. The real cause stays in the error
// chain for the logs.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/surreal-wow/sdbeditor/internal/logging"
)

// Sentinel errors the HTTP layer maps to status codes.
var (
	// ErrBadCredentials covers unknown accounts and verifier mismatches
	// alike; the two are indistinguishable on purpose.
	ErrBadCredentials = errors.New("invalid username or password")
	// ErrInvalidInput wraps signup validation failures with a reason safe
	// for response bodies.
	ErrInvalidInput = errors.New("invalid signup input")
	// ErrUsernameTaken and ErrEmailTaken are signup conflicts.
	ErrUsernameTaken = errors.New("username already registered")
	ErrEmailTaken    = errors.New("email already registered")
	// ErrUnavailable is the generic face of every database-layer failure
	// on the auth surface.
	ErrUnavailable = errors.New("account service unavailable")
)

// Account database statements. The schema is the game server's own
// (account, account_access); this code only ever reads credentials and
// inserts new accounts.
const (
	credentialQuery    = "SELECT `id`, `salt`, `verifier` FROM `account` WHERE `username` = ?"
	gmLevelQuery       = "SELECT COALESCE(MAX(`gmlevel`), 0) FROM `account_access` WHERE `id` = ?"
	usernameTakenQuery = "SELECT EXISTS(SELECT 1 FROM `account` WHERE `username` = ?)"
	emailTakenQuery    = "SELECT EXISTS(SELECT 1 FROM `account` WHERE `email` = ?)"
	// expansion 2 = Wrath of the Lich King.
	insertAccountSQL = "INSERT INTO `account` (`username`, `salt`, `verifier`, `email`, `joindate`, `expansion`) VALUES (?, ?, ?, ?, NOW(), 2)"
)

// authRetryMaxElapsed bounds dial retries. Logins sit on an interactive
// request, so the budget is tighter than the spell mirror's.
const authRetryMaxElapsed = 4 * time.Second

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9]{3,16}$`)
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Service owns account lookups and the bearer token table. Connections are
// opened per operation and closed when it returns, like the spell mirror.
type Service struct {
	dsn    string
	tokens *TokenStore
	log    *logrus.Entry
}

// NewService wires an auth service over a go-sql-driver DSN.
func NewService(dsn string, log *logrus.Entry) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{dsn: dsn, tokens: NewTokenStore(), log: log}
}

// Authenticate resolves a bearer token to its session.
func (s *Service) Authenticate(token string) (Session, bool) {
	return s.tokens.Lookup(token)
}

// Login checks the credentials with SRP-6 and mints a 30-minute bearer
// token. A mismatching verifier fails hard with ErrBadCredentials; there is
// no fallback path.
func (s *Service) Login(ctx context.Context, username, password string) (string, Session, error) {
	u := strings.ToUpper(strings.TrimSpace(username))
	if u == "" || password == "" {
		return "", Session{}, ErrBadCredentials
	}

	var (
		accountID uint32
		gmLevel   int
	)
	err := s.withDB(ctx, func(db *sql.DB) error {
		var salt, verifier []byte
		err := db.QueryRowContext(ctx, credentialQuery, u).Scan(&accountID, &salt, &verifier)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBadCredentials
		}
		if err != nil {
			return fmt.Errorf("account lookup: %w", err)
		}
		if !VerifyPassword(u, password, salt, verifier) {
			return ErrBadCredentials
		}
		if err := db.QueryRowContext(ctx, gmLevelQuery, accountID).Scan(&gmLevel); err != nil {
			return fmt.Errorf("gm level lookup: %w", err)
		}
		return nil
	})
	if err != nil {
		err = flattenDBErr(err)
		if errors.Is(err, ErrBadCredentials) {
			s.log.WithField("account", u).Warn("login rejected")
		} else {
			s.log.WithField("account", u).WithError(err).Warn("login unavailable")
		}
		return "", Session{}, err
	}

	token, sess, err := s.tokens.Mint(accountID, u, gmLevel)
	if err != nil {
		return "", Session{}, fmt.Errorf("%w: mint token: %v", ErrUnavailable, err)
	}
	s.log.WithFields(logrus.Fields{
		"account": u,
		"gmLevel": gmLevel,
	}).Info("login")
	return token, sess, nil
}

// Signup validates the fields, rejects duplicates by username and by email,
// and inserts a fresh account with a random salt and its SRP-6 verifier.
func (s *Service) Signup(ctx context.Context, username, password, email string) error {
	if err := ValidateSignup(username, password, email); err != nil {
		return err
	}
	u := strings.ToUpper(strings.TrimSpace(username))
	email = strings.TrimSpace(email)

	salt, err := GenerateSalt()
	if err != nil {
		return fmt.Errorf("%w: generate salt: %v", ErrUnavailable, err)
	}
	verifier := CalculateVerifier(u, password, salt)

	err = s.withDB(ctx, func(db *sql.DB) error {
		var taken bool
		if err := db.QueryRowContext(ctx, usernameTakenQuery, u).Scan(&taken); err != nil {
			return fmt.Errorf("username check: %w", err)
		}
		if taken {
			return ErrUsernameTaken
		}
		if err := db.QueryRowContext(ctx, emailTakenQuery, email).Scan(&taken); err != nil {
			return fmt.Errorf("email check: %w", err)
		}
		if taken {
			return ErrEmailTaken
		}
		if _, err := db.ExecContext(ctx, insertAccountSQL, u, salt, verifier, email); err != nil {
			// A race past the EXISTS checks lands on the unique key.
			if isDuplicateError(err) {
				if strings.Contains(strings.ToLower(err.Error()), "email") {
					return ErrEmailTaken
				}
				return ErrUsernameTaken
			}
			return fmt.Errorf("insert account: %w", err)
		}
		return nil
	})
	if err != nil {
		return flattenDBErr(err)
	}

	s.log.WithField("account", u).Info("account created")
	return nil
}

// ValidateSignup checks the signup fields: username 3-16 alphanumeric,
// password 4-16 characters, email of the x@y.z shape.
func ValidateSignup(username, password, email string) error {
	if !usernameRe.MatchString(strings.TrimSpace(username)) {
		return fmt.Errorf("%w: username must be 3-16 alphanumeric characters", ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(password); n < 4 || n > 16 {
		return fmt.Errorf("%w: password must be 4-16 characters", ErrInvalidInput)
	}
	if !emailRe.MatchString(strings.TrimSpace(email)) {
		return fmt.Errorf("%w: email address is not valid", ErrInvalidInput)
	}
	return nil
}

// withDB runs fn against a fresh connection, retrying dial-time failures.
func (s *Service) withDB(ctx context.Context, fn func(*sql.DB) error) error {
	db, err := sql.Open("mysql", s.dsn)
	if err != nil {
		return fmt.Errorf("open account db: %w", err)
	}
	defer db.Close()

	// BackOff implementations are stateful; always build a fresh one.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = authRetryMaxElapsed
	return backoff.Retry(func() error {
		err := fn(db)
		if err == nil {
			return nil
		}
		if isDialError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}

// isDialError matches the connection-establishment failures worth retrying
// on the login path. Server-side errors fail immediately: a login should
// not sit on a retry loop.
func isDialError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"i/o timeout",
		"driver: bad connection",
		"invalid connection",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// isDuplicateError matches MySQL error 1062.
func isDuplicateError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate entry")
}

// flattenDBErr hides database detail behind the generic sentinel while
// keeping the cause text for the logs. Errors already carrying one of the
// auth sentinels pass through unchanged.
func flattenDBErr(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrBadCredentials, ErrInvalidInput, ErrUsernameTaken, ErrEmailTaken} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

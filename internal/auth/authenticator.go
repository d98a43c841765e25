// Package auth проверяет учетные данные игроков при входе.
//
// Поддерживаются три способа: доверенный одиночный режим, пароль
// (учетная запись создается при первом входе) и токен повторного входа,
// который сервер выдает в приветствии.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/annel0/voxel-server/internal/logging"
)

const (
	MethodSingleplayer = "singleplayer"
	MethodPassword     = "password"
	MethodToken        = "token"

	DefaultPlayerName = "Player"
)

var (
	ErrUnknownMethod      = errors.New("unknown login method")
	ErrMethodNotAllowed   = errors.New("login method not allowed in this mode")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Credentials JSON из сообщения login
type Credentials struct {
	Method   string `json:"method"`
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// ParseCredentials разбирает JSON; пустые поля получают значения по умолчанию
func ParseCredentials(data string) (Credentials, error) {
	var c Credentials
	if strings.TrimSpace(data) != "" {
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return c, fmt.Errorf("разбор учетных данных: %w", err)
		}
	}
	if c.Method == "" {
		c.Method = MethodSingleplayer
	}
	if c.Name == "" {
		c.Name = DefaultPlayerName
	}
	return c, nil
}

// Identity результат успешного входа
type Identity struct {
	Name         string
	Account      string // пусто в одиночном режиме
	Singleplayer bool
	Registered   bool   // учетная запись создана этим входом
	Entity       uint32 // сущность из токена, 0 если неизвестна
}

// Accounts хранилище хешей паролей
type Accounts interface {
	GetAccount(name string) ([]byte, bool, error)
	PutAccount(name string, hash []byte) error
}

// Authenticator проверяет вход игроков
type Authenticator struct {
	accounts     Accounts
	tokens       *Tokens
	singleplayer bool

	// регистрация: проверка отсутствия и запись должны быть атомарны
	mu     sync.Mutex
	logger *logging.Logger
}

// NewAuthenticator создает проверяющего. singleplayer разрешает доверенный вход.
func NewAuthenticator(accounts Accounts, tokens *Tokens, singleplayer bool) *Authenticator {
	return &Authenticator{
		accounts:     accounts,
		tokens:       tokens,
		singleplayer: singleplayer,
		logger:       logging.GetComponentLogger("AUTH"),
	}
}

// Tokens выпускающий токены
func (a *Authenticator) Tokens() *Tokens {
	return a.tokens
}

// Authenticate выполняет вход по выбранному методу
func (a *Authenticator) Authenticate(c Credentials) (Identity, error) {
	a.logger.Debug("🔐 Аутентификация: user=%s, method=%s", c.Name, c.Method)

	switch c.Method {
	case MethodSingleplayer:
		if !a.singleplayer {
			return Identity{}, fmt.Errorf("%w: %s", ErrMethodNotAllowed, c.Method)
		}
		return Identity{Name: c.Name, Singleplayer: true}, nil

	case MethodPassword:
		return a.byPassword(c.Name, c.Password)

	case MethodToken:
		claims, err := a.tokens.Validate(c.Token)
		if err != nil {
			a.logger.Warn("❌ Ошибка валидации токена: %v", err)
			return Identity{}, err
		}
		return Identity{Name: claims.Account, Account: claims.Account, Entity: claims.Entity}, nil
	}
	return Identity{}, fmt.Errorf("%w: %q", ErrUnknownMethod, c.Method)
}

func (a *Authenticator) byPassword(name, password string) (Identity, error) {
	if name == "" || password == "" {
		return Identity{}, ErrInvalidCredentials
	}
	account := strings.ToLower(name)

	a.mu.Lock()
	defer a.mu.Unlock()

	hash, ok, err := a.accounts.GetAccount(account)
	if err != nil {
		return Identity{}, fmt.Errorf("чтение учетной записи %s: %w", account, err)
	}
	if !ok {
		hash, err = HashPassword(password)
		if err != nil {
			return Identity{}, fmt.Errorf("хеширование пароля: %w", err)
		}
		if err := a.accounts.PutAccount(account, hash); err != nil {
			return Identity{}, fmt.Errorf("запись учетной записи %s: %w", account, err)
		}
		a.logger.Info("🆕 Зарегистрирована учетная запись %s", account)
		return Identity{Name: name, Account: account, Registered: true}, nil
	}
	if !CheckPassword(hash, password) {
		a.logger.Warn("❌ Неудачная аутентификация для пользователя %s", account)
		return Identity{}, ErrInvalidCredentials
	}
	a.logger.Info("✅ Успешная аутентификация пользователя %s", account)
	return Identity{Name: name, Account: account}, nil
}

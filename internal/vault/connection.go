package vault

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ConnectionScheme is the URI scheme of wallet connection strings.
const ConnectionScheme = "nostr+walletconnect"

var validate = validator.New()

// Connection is a parsed wallet connection string.
type Connection struct {
	WalletPubkey string   `json:"wallet_pubkey" validate:"required,hexadecimal,len=64"`
	Relays       []string `json:"relays" validate:"min=1,dive,url"`
	Secret       string   `json:"-" validate:"required,hexadecimal,len=64"`
	LUD16        string   `json:"lud16,omitempty" validate:"omitempty,email"`
}

// Info is the non-secret part of a connection.
type Info struct {
	WalletPubkey string   `json:"wallet_pubkey"`
	Relays       []string `json:"relays"`
	LUD16        string   `json:"lud16,omitempty"`
}

// Info strips the secret.
func (c Connection) Info() Info {
	return Info{
		WalletPubkey: c.WalletPubkey,
		Relays:       append([]string(nil), c.Relays...),
		LUD16:        c.LUD16,
	}
}

// ConnectionError reports a malformed connection string. The message never
// contains the secret.
type ConnectionError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Field == "" {
		return "invalid wallet connection: " + e.Reason
	}
	return fmt.Sprintf("invalid wallet connection: %s: %s", e.Field, e.Reason)
}

// IsConnectionError returns true if err is a *ConnectionError.
// Uses errors.As to handle wrapped errors.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// ParseConnection parses
//
//	nostr+walletconnect://<wallet-pubkey>?relay=<url>&secret=<hex>[&lud16=<addr>]
//
// relay may repeat.
func ParseConnection(uri string) (Connection, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return Connection{}, &ConnectionError{Reason: "not a URI"}
	}
	if u.Scheme != ConnectionScheme {
		return Connection{}, &ConnectionError{Field: "scheme", Reason: fmt.Sprintf("must be %q", ConnectionScheme)}
	}

	pubkey := u.Host
	if pubkey == "" {
		pubkey = strings.Trim(u.Opaque+u.Path, "/")
	}

	q := u.Query()
	c := Connection{
		WalletPubkey: strings.ToLower(pubkey),
		Relays:       q["relay"],
		Secret:       strings.ToLower(q.Get("secret")),
		LUD16:        q.Get("lud16"),
	}

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return Connection{}, &ConnectionError{
				Field:  fieldName(fe.StructField()),
				Reason: fmt.Sprintf("failed %q check", fe.Tag()),
			}
		}
		return Connection{}, &ConnectionError{Reason: err.Error()}
	}
	return c, nil
}

func fieldName(structField string) string {
	if i := strings.IndexByte(structField, '['); i >= 0 {
		structField = structField[:i]
	}
	switch structField {
	case "WalletPubkey":
		return "wallet_pubkey"
	case "Relays":
		return "relay"
	case "Secret":
		return "secret"
	case "LUD16":
		return "lud16"
	}
	return strings.ToLower(structField)
}

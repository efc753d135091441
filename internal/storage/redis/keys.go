package redis

import "fmt"

// keys builds Redis keys under a configurable prefix
type keys struct {
	prefix string
}

func newKeys(prefix string) keys {
	if prefix == "" {
		prefix = DefaultConfig().KeyPrefix
	}
	return keys{prefix: prefix}
}

// account returns the key for an Account hash-as-JSON value
func (k keys) account(username string) string {
	return fmt.Sprintf("%s:account:%s", k.prefix, username)
}

// accountIndex returns the key for the SET of all usernames
func (k keys) accountIndex() string {
	return fmt.Sprintf("%s:idx:accounts", k.prefix)
}

// token returns the key for a Token
func (k keys) token(value string) string {
	return fmt.Sprintf("%s:token:%s", k.prefix, value)
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyHandle      = errors.New("handle is empty")
	ErrDuplicateAccount = errors.New("account is already monitored")
	ErrUnknownAccount   = errors.New("account is not monitored")
)

// NormalizeHandle strips leading @ signs and lowercases, so "@Alice" and
// "alice" name the same account.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(handle), "@"))
}

func (c *Config) HasAccount(handle string) bool {
	return slices.Contains(c.Accounts, NormalizeHandle(handle))
}

// AddAccount appends handle to the registry and returns its normalized form.
func (c *Config) AddAccount(handle string) (string, error) {
	h := NormalizeHandle(handle)
	if h == "" {
		return "", ErrEmptyHandle
	}
	if slices.Contains(c.Accounts, h) {
		return h, ErrDuplicateAccount
	}
	c.Accounts = append(c.Accounts, h)
	return h, nil
}

// RemoveAccount drops handle from the registry and returns its normalized form.
func (c *Config) RemoveAccount(handle string) (string, error) {
	h := NormalizeHandle(handle)
	if h == "" {
		return "", ErrEmptyHandle
	}
	i := slices.Index(c.Accounts, h)
	if i < 0 {
		return h, ErrUnknownAccount
	}
	c.Accounts = slices.Delete(c.Accounts, i, i+1)
	return h, nil
}

// SaveAccounts rewrites the accounts list in dir/config.yaml, keeping every
// other key and comment in place. The file is created when missing.
func SaveAccounts(dir string, accounts []string) error {
	return editConfig(dir, func(root *yaml.Node) error {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, a := range accounts {
			seq.Content = append(seq.Content, &yaml.Node{
				Kind:  yaml.ScalarNode,
				Tag:   "!!str",
				Value: a,
				Style: yaml.DoubleQuotedStyle,
			})
		}

		if existing := findMapValue(root, "accounts"); existing != nil {
			// Keep comments attached to the old node.
			existing.Kind = yaml.SequenceNode
			existing.Tag = "!!seq"
			existing.Value = ""
			existing.Style = 0
			existing.Content = seq.Content
			return nil
		}

		setMapValue(root, "accounts", seq)
		return nil
	})
}

// SaveSetting sets a scalar at a dotted key path such as
// "notification.sound", creating intermediate mappings as needed.
func SaveSetting(dir, key, value string) error {
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("invalid setting key %q", key)
		}
	}

	return editConfig(dir, func(root *yaml.Node) error {
		node := root
		for _, p := range parts[:len(parts)-1] {
			next := findMapValue(node, p)
			if next == nil {
				next = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
				setMapValue(node, p, next)
			}
			if next.Kind != yaml.MappingNode {
				return fmt.Errorf("setting %q: %s is not a mapping", key, p)
			}
			node = next
		}

		leaf := parts[len(parts)-1]
		if existing := findMapValue(node, leaf); existing != nil {
			if existing.Kind != yaml.ScalarNode {
				return fmt.Errorf("setting %q: existing value is not a scalar", key)
			}
			existing.Value = value
			existing.Tag = ""
			existing.Style = 0
			return nil
		}

		setMapValue(node, leaf, &yaml.Node{Kind: yaml.ScalarNode, Value: value})
		return nil
	})
}

// editConfig loads dir/config.yaml as a yaml.Node tree, applies fn to the
// root mapping and writes the tree back.
func editConfig(dir string, fn func(root *yaml.Node) error) error {
	path := filepath.Join(dir, DefaultConfigFile)

	var doc yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse config YAML: %w", err)
		}
	}

	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode}
	}
	if len(doc.Content) == 0 {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return errors.New("config.yaml: top level must be a mapping")
	}

	if err := fn(root); err != nil {
		return err
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

func findMapValue(mapping *yaml.Node, key string) *yaml.Node {
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func setMapValue(mapping *yaml.Node, key string, value *yaml.Node) {
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value,
	)
}

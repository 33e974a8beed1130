// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration management command.
//
// Command: config [subcommand]
// Short:   Show and edit the configuration file
//
// Subcommands:
//   show (default)     Print the effective configuration, token masked
//   get <key>          Print one value
//   set <key> <value>  Change one value in the config file
//   keys               List settable keys
//   path               Print the config file location
//   validate           Check the effective configuration
//   reset              Write the defaults to the config file
//
// Examples:
//   ragchat config set backend.url https://rag.example.com
//   ragchat config get chat.include_history
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/ragchat/internal/config"
)

// HandleConfigCommand dispatches the config subcommands.
func HandleConfigCommand(args Args) error {
	switch args.Subcommand {
	case "", "show":
		return configShow(args)
	case "get":
		return configGet(args)
	case "set":
		return configSet(args)
	case "keys":
		return configKeys(args)
	case "path":
		return configPath(args)
	case "validate":
		return configValidate(args)
	case "reset":
		return configReset(args)
	default:
		return &ValidationError{
			Field:   "subcommand",
			Value:   args.Subcommand,
			Reason:  "unknown config subcommand",
			Example: "ragchat config show|get|set|keys|path|validate|reset",
		}
	}
}

// configFilePath returns the file config commands read and write: --config,
// else the TOML file, else an existing JSON file, else the TOML location.
func configFilePath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	tomlPath, err := config.ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	jsonPath, err := config.ConfigPathJSON()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, nil
	}
	return tomlPath, nil
}

// loadFileOnly reads the config file without environment or flag
// overrides, so a save never persists values that came from elsewhere.
func loadFileOnly(path string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	var err error
	if strings.HasSuffix(path, ".json") {
		err = config.LoadJSON(cfg, path)
	} else {
		err = config.LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return cfg, nil
}

// configValues returns every key with its effective value, token masked.
func configValues(cfg *config.Config) map[string]any {
	values := make(map[string]any)
	for _, key := range config.Keys() {
		v, err := cfg.Get(key)
		if err != nil {
			continue
		}
		if key == "backend.token" {
			if s, _ := v.(string); s != "" {
				v = config.MaskSecret(s)
			}
		}
		values[key] = v
	}
	return values
}

func configShow(args Args) error {
	cfg, path, err := LoadConfig(args)
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("config", ConfigData{Path: path, Values: configValues(cfg)}).Print()
	}
	fmt.Println(DimStyle.Render("# " + path))
	fmt.Print(cfg.String())
	return nil
}

func configGet(args Args) error {
	if args.ConfigKey == "" {
		return ErrMissingArgument("key", "ragchat config get backend.url")
	}
	cfg, path, err := LoadConfig(args)
	if err != nil {
		return err
	}
	v, err := cfg.Get(args.ConfigKey)
	if err != nil {
		return &ValidationError{Field: "key", Value: args.ConfigKey, Reason: err.Error(), Example: "ragchat config keys"}
	}
	if args.ConfigKey == "backend.token" {
		if s, _ := v.(string); s != "" {
			v = config.MaskSecret(s)
		}
	}
	if args.JSON {
		return NewJSONResponse("config", ConfigData{Path: path, Values: map[string]any{args.ConfigKey: v}}).Print()
	}
	fmt.Println(v)
	return nil
}

func configSet(args Args) error {
	if args.ConfigKey == "" {
		return ErrMissingArgument("key", "ragchat config set backend.url https://rag.example.com")
	}
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	cfg, err := loadFileOnly(path)
	if err != nil {
		return err
	}
	if err := cfg.Set(args.ConfigKey, args.ConfigVal); err != nil {
		return &ValidationError{Field: args.ConfigKey, Value: args.ConfigVal, Reason: err.Error()}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := config.Save(cfg, path); err != nil {
		return err
	}

	shown := args.ConfigVal
	if args.ConfigKey == "backend.token" {
		shown = config.MaskSecret(shown)
	}
	if args.JSON {
		return NewJSONResponse("config", ConfigData{Path: path, Values: map[string]any{args.ConfigKey: shown}}).Print()
	}
	fmt.Printf("%s %s = %s\n", SuccessStyle.Render("[OK]"), args.ConfigKey, shown)
	return nil
}

func configKeys(args Args) error {
	keys := config.Keys()
	if args.JSON {
		return NewJSONResponse("config", keys).Print()
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}

func configPath(args Args) error {
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("config", ConfigData{Path: path}).Print()
	}
	fmt.Println(path)
	return nil
}

func configValidate(args Args) error {
	cfg, path, err := LoadConfig(args)
	if err != nil {
		return err
	}
	var warnings []string
	if cfg.Backend.URL == "" {
		warnings = append(warnings, config.ErrNoBackend.Error())
	}
	if args.JSON {
		return NewJSONResponse("config", map[string]any{"path": path, "valid": true, "warnings": warnings}).Print()
	}
	fmt.Printf("%s %s is valid\n", SuccessStyle.Render("[OK]"), path)
	for _, w := range warnings {
		fmt.Printf("%s %s\n", WarningStyle.Render("[!]"), w)
	}
	return nil
}

func configReset(args Args) error {
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	if err := config.Save(config.Default(), path); err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("config", ConfigData{Path: path, Values: configValues(config.Default())}).Print()
	}
	fmt.Printf("%s wrote defaults to %s\n", SuccessStyle.Render("[OK]"), path)
	return nil
}

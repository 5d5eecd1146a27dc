// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/aegis-dev/aegis/internal/config"
	"github.com/aegis-dev/aegis/internal/provider"
	"github.com/aegis-dev/aegis/internal/provider/anthropic"
	"github.com/aegis-dev/aegis/internal/provider/google"
	"github.com/aegis-dev/aegis/internal/provider/openai"
	"github.com/aegis-dev/aegis/internal/provider/openrouter"
	"github.com/aegis-dev/aegis/internal/secrets"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// initHTTPClient is the HTTP client used for API key validation.
// Exposed as a variable so tests can replace it.
var initHTTPClient = &http.Client{Timeout: 10 * time.Second}

// initWizardStep tracks which step of the wizard is active.
type initWizardStep int

const (
	stepPrimary          initWizardStep = iota // select primary provider
	stepPrimaryKey                             // enter primary API key
	stepValidatePrimary                        // validating key (spinner)
	stepFallback                               // select fallback provider
	stepFallbackKey                            // enter fallback API key
	stepValidateFallback                       // validating key (spinner)
	stepDone                                   // wizard complete
	stepError                                  // terminal error
)

// initResult holds the collected wizard configuration.
type initResult struct {
	Primary     provider.Name
	PrimaryKey  string
	Fallback    provider.Name // empty when the fallback step was skipped
	FallbackKey string
}

// --- bubbletea messages ---

type (
	validationSuccessMsg struct{ step initWizardStep }
	validationErrorMsg   struct {
		step initWizardStep
		err  error
	}
)
type configWrittenMsg struct{ path string }

// --- lipgloss styles ---

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

// initModel is the bubbletea model for the init wizard.
type initModel struct {
	step           initWizardStep
	primaryIdx     int
	fallbackIdx    int
	apiKeyInput    textinput.Model
	spinner        spinner.Model
	result         initResult
	validationErr  string
	configPath     string
	secretStore    secrets.Store
	errFinal       error
	skipFallback   bool
	forceOverwrite bool
}

func newInitModel(store secrets.Store) initModel {
	apiKey := textinput.New()
	apiKey.Placeholder = "paste API key here"
	apiKey.EchoMode = textinput.EchoPassword
	apiKey.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return initModel{
		step:        stepPrimary,
		apiKeyInput: apiKey,
		spinner:     sp,
		secretStore: store,
	}
}

func (m initModel) Init() tea.Cmd {
	return nil
}

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case validationSuccessMsg:
		return m.handleValidationSuccess(msg)

	case validationErrorMsg:
		m.validationErr = msg.err.Error()
		switch msg.step {
		case stepValidatePrimary:
			m.step = stepPrimaryKey
			m.apiKeyInput.Focus()
		case stepValidateFallback:
			m.step = stepFallbackKey
			m.apiKeyInput.Focus()
		}
		return m, nil

	case configWrittenMsg:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.errFinal = msg
		return m, tea.Quit
	}

	return m.updateInputs(msg)
}

func (m initModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.step {
	case stepPrimary:
		return m.handlePrimaryKey(msg)
	case stepPrimaryKey:
		return m.handlePrimaryKeyInput(msg)
	case stepFallback:
		return m.handleFallbackKey(msg)
	case stepFallbackKey:
		return m.handleFallbackKeyInput(msg)
	}
	return m, nil
}

func (m initModel) handlePrimaryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.primaryIdx > 0 {
			m.primaryIdx--
		}
	case "down", "j":
		if m.primaryIdx < len(provider.KnownNames)-1 {
			m.primaryIdx++
		}
	case "enter":
		m.result.Primary = provider.KnownNames[m.primaryIdx]
		m.step = stepPrimaryKey
		m.validationErr = ""
		m.apiKeyInput.SetValue("")
		m.apiKeyInput.Focus()
		return m, textinput.Blink
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handlePrimaryKeyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		key := strings.TrimSpace(m.apiKeyInput.Value())
		if key == "" {
			m.validationErr = "API key must not be empty"
			return m, nil
		}
		m.result.PrimaryKey = key
		m.validationErr = ""
		m.step = stepValidatePrimary
		return m, tea.Batch(
			m.spinner.Tick,
			validateProviderKeyCmd(stepValidatePrimary, m.result.Primary, key),
		)
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
	return m, cmd
}

func (m initModel) handleFallbackKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.fallbackIdx > 0 {
			m.fallbackIdx--
		}
	case "down", "j":
		if m.fallbackIdx < len(provider.KnownNames)-1 {
			m.fallbackIdx++
		}
	case "enter":
		picked := provider.KnownNames[m.fallbackIdx]
		if picked == m.result.Primary {
			m.validationErr = "fallback must differ from the primary provider"
			return m, nil
		}
		m.result.Fallback = picked
		m.step = stepFallbackKey
		m.validationErr = ""
		m.apiKeyInput.SetValue("")
		m.apiKeyInput.Focus()
		return m, textinput.Blink
	case "s":
		// Skip the fallback — write config with the primary only.
		m.result.Fallback = ""
		m.result.FallbackKey = ""
		return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleFallbackKeyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		key := strings.TrimSpace(m.apiKeyInput.Value())
		if key == "" {
			m.validationErr = "API key must not be empty"
			return m, nil
		}
		m.result.FallbackKey = key
		m.validationErr = ""
		m.step = stepValidateFallback
		return m, tea.Batch(
			m.spinner.Tick,
			validateProviderKeyCmd(stepValidateFallback, m.result.Fallback, key),
		)
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
	return m, cmd
}

func (m initModel) handleValidationSuccess(msg validationSuccessMsg) (tea.Model, tea.Cmd) {
	switch msg.step {
	case stepValidatePrimary:
		if m.skipFallback {
			m.result.Fallback = ""
			m.result.FallbackKey = ""
			return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
		}
		m.step = stepFallback
	case stepValidateFallback:
		return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
	}
	return m, nil
}

func (m initModel) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m.step {
	case stepPrimaryKey, stepFallbackKey:
		var cmd tea.Cmd
		m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m initModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  Aegis Setup Wizard  ") + "\n\n")

	switch m.step {
	case stepPrimary:
		b.WriteString(promptStyle.Render("Step 1/2: Pick your primary provider") + "\n\n")
		b.WriteString(renderProviderList(m.primaryIdx))
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepPrimaryKey:
		b.WriteString(promptStyle.Render("Step 1/2: "+string(m.result.Primary)+" API key") + "\n\n")
		b.WriteString(m.apiKeyInput.View() + "\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  ctrl+c to quit"))

	case stepValidatePrimary:
		b.WriteString(m.spinner.View() + " Validating " + string(m.result.Primary) + " API key…\n")

	case stepFallback:
		b.WriteString(promptStyle.Render("Step 2/2: Pick a fallback provider") + "\n\n")
		b.WriteString(renderProviderList(m.fallbackIdx))
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  s to skip  q to quit"))

	case stepFallbackKey:
		b.WriteString(promptStyle.Render("Step 2/2: "+string(m.result.Fallback)+" API key") + "\n\n")
		b.WriteString(m.apiKeyInput.View() + "\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  ctrl+c to quit"))

	case stepValidateFallback:
		b.WriteString(m.spinner.View() + " Validating " + string(m.result.Fallback) + " API key…\n")

	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete!  ") + "\n\n")
		if m.configPath != "" {
			b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		}
		b.WriteString("Run " + promptStyle.Render("aegis start") + " to launch the gateway.\n")
		b.WriteString("Run " + promptStyle.Render("aegis generate \"hello\"") + " to try it out.\n")
		b.WriteString("Run " + promptStyle.Render("aegis doctor") + " to verify setup.\n")

	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

func renderProviderList(selected int) string {
	var b strings.Builder
	for i, p := range provider.KnownNames {
		if i == selected {
			b.WriteString(selectedStyle.Render("  > "+string(p)) + "\n")
		} else {
			b.WriteString(dimStyle.Render("    "+string(p)) + "\n")
		}
	}
	return b.String()
}

// --- tea.Cmd factories ---

func validateProviderKeyCmd(step initWizardStep, name provider.Name, key string) tea.Cmd {
	return func() tea.Msg {
		if err := provider.ValidateKey(context.Background(), initHTTPClient, name, key); err != nil {
			return validationErrorMsg{step: step, err: err}
		}
		return validationSuccessMsg{step: step}
	}
}

func writeConfigCmd(result initResult, store secrets.Store, forceOverwrite bool) tea.Cmd {
	return func() tea.Msg {
		path, err := storeSecretAndWriteConfig(result, store, forceOverwrite)
		if err != nil {
			return err
		}
		return configWrittenMsg{path: path}
	}
}

// --- Config generation (exported for tests) ---

// GenerateConfigYAML produces a minimal aegis.yaml from the wizard result.
// API keys are referenced via keyring:// URIs; the actual secrets are stored
// separately via storeSecretAndWriteConfig.
func GenerateConfigYAML(result initResult) string {
	var sb strings.Builder
	sb.WriteString("# Aegis configuration — generated by aegis init\n")
	sb.WriteString("# Secrets live in the OS keyring; run `aegis secret list` to see them.\n\n")

	sb.WriteString("server:\n")
	sb.WriteString("  listen: \"127.0.0.1:18808\"\n\n")

	sb.WriteString("providers:\n")
	writeProviderSection(&sb, result.Primary, 1)
	if result.Fallback != "" {
		writeProviderSection(&sb, result.Fallback, 2)
	}

	sb.WriteString("selection:\n")
	sb.WriteString("  strategy: composite\n\n")

	sb.WriteString("fallback:\n")
	if result.Fallback != "" {
		sb.WriteString(fmt.Sprintf("  provider: %s\n", result.Fallback))
	} else {
		sb.WriteString("  provider: \"\"\n")
	}
	sb.WriteString("  allow_stale: true\n")

	return sb.String()
}

func writeProviderSection(sb *strings.Builder, name provider.Name, priority int) {
	sb.WriteString(fmt.Sprintf("  %s:\n", name))
	sb.WriteString("    enabled: true\n")
	sb.WriteString(fmt.Sprintf("    api_key: keyring://aegis/%s\n", secretKeyName(name)))
	sb.WriteString(fmt.Sprintf("    model: %s\n", defaultModelForProvider(name)))
	sb.WriteString(fmt.Sprintf("    priority: %d\n\n", priority))
}

// secretKeyName is the keyring entry name for a provider's API key.
func secretKeyName(name provider.Name) string {
	return string(name) + "_api_key"
}

// defaultModelForProvider returns the adapter's default model for a provider.
func defaultModelForProvider(name provider.Name) string {
	switch name {
	case provider.NameAnthropic:
		return anthropic.DefaultModel
	case provider.NameOpenAI:
		return openai.DefaultModel
	case provider.NameGoogle:
		return google.DefaultModel
	case provider.NameOpenRouter:
		return openrouter.DefaultModel
	default:
		return ""
	}
}

// storeSecretAndWriteConfig saves API keys to the OS keyring and writes the
// config YAML to the default config path.
//
// When forceOverwrite is false and the config file already exists, an error is
// returned asking the user to pass --force. When forceOverwrite is true the
// entire config is overwritten (full re-init). A smarter merge that preserves
// non-secret sections is left as a future enhancement.
func storeSecretAndWriteConfig(result initResult, store secrets.Store, forceOverwrite bool) (string, error) {
	if err := store.Store(serviceName, secretKeyName(result.Primary), result.PrimaryKey); err != nil {
		return "", aegiserr.Errorf(aegiserr.CodeSecretStoreFailure, "storing %s API key: %w", result.Primary, err)
	}

	// NOTE: if the config write fails below, secrets already stored in the
	// keyring are not rolled back. Orphaned keyring entries are harmless and
	// get overwritten on a successful re-run.
	if result.Fallback != "" {
		if err := store.Store(serviceName, secretKeyName(result.Fallback), result.FallbackKey); err != nil {
			return "", aegiserr.Errorf(aegiserr.CodeSecretStoreFailure, "storing %s API key: %w", result.Fallback, err)
		}
	}

	cfgPath, err := configPathForWrite()
	if err != nil {
		return "", err
	}

	if !forceOverwrite {
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			return "", aegiserr.Errorf(aegiserr.CodeConfigAlreadyExists,
				"config file already exists at %s; use --force to overwrite", cfgPath)
		}
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", aegiserr.Errorf(aegiserr.CodeConfigLoadReadFailure, "creating config directory %s: %w", dir, err)
	}

	yaml := GenerateConfigYAML(result)
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		return "", aegiserr.Errorf(aegiserr.CodeConfigLoadReadFailure, "writing config to %s: %w", cfgPath, err)
	}

	return cfgPath, nil
}

// configPathForWrite returns the default config path. Exposed as a variable
// so tests can override it.
var configPathForWrite = config.DefaultConfigPath

// --- Cobra command ---

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard for Aegis",
		Long: `Run an interactive TUI wizard that walks you through:
  1. Picking your primary provider (Anthropic, OpenAI, Google, OpenRouter)
  2. Picking a fallback provider for failover (optional)

API keys are stored securely in the OS keyring and referenced via
keyring:// URIs in the config file. No secrets are written in plain text.

After completion, run:
  aegis start     — start the gateway
  aegis generate  — request a completion
  aegis doctor    — verify your setup`,
		RunE: runInit,
	}

	cmd.Flags().Bool("skip-fallback", false, "Skip the fallback provider step")
	cmd.Flags().Bool("force", false, "Overwrite existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	// The wizard needs a real terminal on stdin.
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"aegis init requires an interactive terminal.\n"+
				"To configure Aegis non-interactively, edit ~/.config/aegis/aegis.yaml directly.")
		return aegiserr.New(aegiserr.CodeCLISetupFailure, "aegis init: not an interactive terminal")
	}

	skipFallback, _ := cmd.Flags().GetBool("skip-fallback")
	forceOverwrite, _ := cmd.Flags().GetBool("force")

	m := newInitModel(secretStoreFactory())
	m.skipFallback = skipFallback
	m.forceOverwrite = forceOverwrite

	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return aegiserr.Errorf(aegiserr.CodeCLISetupFailure, "init wizard error: %w", err)
	}

	fm, ok := finalModel.(initModel)
	if !ok {
		return aegiserr.New(aegiserr.CodeCLISetupFailure, "unexpected model type after wizard")
	}

	if fm.errFinal != nil {
		return aegiserr.Errorf(aegiserr.CodeCLISetupFailure, "init failed: %w", fm.errFinal)
	}

	// Quitting early (before stepDone) is fine — nothing was written.
	return nil
}

// isTerminal reports whether f is a terminal file descriptor.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

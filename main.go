package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	Version = "v0.01.00"
	License = "Apache-2.0"
)

var settingsPath string

var rootCmd = &cobra.Command{
	Use:   "otchat",
	Short: "otchat - chat with local and hosted LLMs from the terminal",
	Long: `otchat streams chats against Ollama, OpenAI, OpenRouter, Gemini and
Anthropic models, runs the tools the model calls and falls back to the next
configured model when one fails.

  otchat chat                      Start a new chat
  otchat chat --resume <id>        Continue a chat
  otchat models                    List the models of every backend
  otchat list                      List stored chats
  otchat search <query>            Search chats and messages
  otchat export <id>               Export a chat as JSON or HTML
  otchat delete <id>               Delete a chat`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "settings file (default ~/.config/otchat/settings.toml)")
}

func main() {
	// .env is optional; api keys usually live there
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorText(err))
		os.Exit(1)
	}
}

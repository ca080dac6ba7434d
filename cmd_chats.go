package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"otchat/render"
	"otchat/session"
	"otchat/storage"
)

const titleColumnWidth = 50

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored chats, most recent first",
	RunE:  runList,
}

var searchMessages bool

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Fuzzy search chat titles, or message text with --messages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var exportFormat, exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a chat as JSON or HTML",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a chat and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	searchCmd.Flags().BoolVar(&searchMessages, "messages", false, "search message text instead of titles")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "export format: json or html")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default ~/Downloads/otchat-<title>-<time>.<format>)")
	rootCmd.AddCommand(listCmd, searchCmd, exportCmd, deleteCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	chats, err := a.store.ListChats(cmd.Context())
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Println("No chats found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUPDATED")
	for _, c := range chats {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, column(c.Title), c.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	query := strings.Join(args, " ")
	index := storage.NewSearchIndex(a.store)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if searchMessages {
		matches, err := index.SearchMessages(cmd.Context(), query)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tTITLE\tROLE\tMESSAGE")
		for _, m := range matches {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ChatID, column(m.ChatTitle), m.Role, m.Preview)
		}
		return w.Flush()
	}

	chats, err := index.FindChats(cmd.Context(), query)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "ID\tTITLE")
	for _, c := range chats {
		fmt.Fprintf(w, "%s\t%s\n", c.ID, column(c.Title))
	}
	return w.Flush()
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	id := args[0]

	var write func(io.Writer) error
	switch exportFormat {
	case "json":
		write = func(w io.Writer) error { return a.store.ExportJSON(ctx, id, w) }
	case "html":
		write = func(w io.Writer) error { return a.store.ExportHTML(ctx, id, w) }
	default:
		return fmt.Errorf("unknown export format %q (want json or html)", exportFormat)
	}

	path := exportOutput
	if path == "" {
		meta, ok, err := a.store.GetChatMeta(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("chat %s not found", id)
		}
		path = storage.GenerateExportPath(meta.Title, exportFormat, time.Now())
	}
	if path == "-" {
		return write(os.Stdout)
	}

	if err := storage.WriteExport(path, write); err != nil {
		// don't leave a partial export behind
		os.Remove(path)
		return err
	}
	fmt.Println(render.DimStyle.Render("exported to " + path))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	// through the manager so the chat also leaves the ongoing snapshot
	mgr := session.NewManager(session.Options{Store: a.store})
	if err := mgr.Restore(cmd.Context()); err != nil {
		return err
	}
	if err := mgr.DeleteChat(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Println("Deleted " + args[0])
	return nil
}

func column(title string) string {
	if title == "" {
		title = "(untitled)"
	}
	return runewidth.Truncate(title, titleColumnWidth, "…")
}

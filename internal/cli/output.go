package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"catalog-browser-api/internal/models"
)

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Print writes data as indented JSON, or through text in text mode.
func (f *OutputFormatter) Print(data any, text func(w io.Writer) error) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	return text(f.Writer)
}

func (f *OutputFormatter) Labels(key string, labels []string) error {
	return f.Print(map[string]any{key: labels, "count": len(labels)}, func(w io.Writer) error {
		for _, l := range labels {
			if _, err := fmt.Fprintln(w, l); err != nil {
				return err
			}
		}
		return nil
	})
}

func (f *OutputFormatter) ProductPage(page *models.ProductPage) error {
	return f.Print(page, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TITLE\tSTORE\tPRICE\tDISCOUNTED\tDISCOUNT\tCATEGORY")
		for _, p := range page.Products {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.0f%%\t%s\n",
				p.Title, p.Store, p.RegularPrice, p.DiscountedPrice, p.DiscountPercent,
				strings.Join(p.CategoryPath, " > "))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "\npage %d of %d (%d products)\n", page.Page, page.TotalPages, page.Total)
		return err
	})
}

func newStderrLogger(w io.Writer) *zap.Logger {
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), zapcore.DebugLevel))
}

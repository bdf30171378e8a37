package demo

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/betbot/perpdemo/pkg/sdk/api"
)

const separator = "----------------------------------------"

// Printer 面向操作者的终端输出（交易对、订单、指标）
type Printer struct {
	out io.Writer

	titleStyle   lipgloss.Style
	keyStyle     lipgloss.Style
	successStyle lipgloss.Style
	warnStyle    lipgloss.Style
	mutedStyle   lipgloss.Style
}

// NewPrinter 创建 Printer；颜色按 w 是否为终端自动降级
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		out: w,
		titleStyle: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")),
		keyStyle: r.NewStyle().
			Foreground(lipgloss.Color("245")),
		successStyle: r.NewStyle().
			Foreground(lipgloss.Color("2")), // 绿色
		warnStyle: r.NewStyle().
			Foreground(lipgloss.Color("3")), // 黄色
		mutedStyle: r.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

func (p *Printer) println(s string) {
	_, _ = fmt.Fprintln(p.out, s)
}

// Title prints a blank line, a bold title and a separator.
func (p *Printer) Title(title string) {
	p.println("")
	p.println(p.titleStyle.Render(title))
	p.println(p.mutedStyle.Render(separator))
}

// Fields prints a titled block of key: value lines.
func (p *Printer) Fields(title string, fields []api.Field) {
	p.Title(title)
	for _, f := range fields {
		p.println(p.keyStyle.Render(f.Key+":") + " " + f.Value)
	}
	p.println(p.mutedStyle.Render(separator))
}

func (p *Printer) Info(format string, args ...any) {
	p.println(fmt.Sprintf(format, args...))
}

func (p *Printer) Success(format string, args ...any) {
	p.println(p.successStyle.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) Warn(format string, args ...any) {
	p.println(p.warnStyle.Render(fmt.Sprintf(format, args...)))
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	celldockerrors "celldock/internal/errors"
	"celldock/internal/kernel"
	pkgcontext "celldock/pkg/context"
)

const (
	replPrompt = "celldock> "
	replQuit   = ":q"
)

// runRepl executes cells read from in. A blank line submits the lines
// gathered so far; ":q" or end of input stops. Build output goes to out,
// prompts and failures to errOut.
func runRepl(ctx context.Context, k *kernel.Kernel, in io.Reader, out, errOut io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var lines []string
	submit := func() {
		if len(lines) == 0 {
			return
		}
		cell := strings.Join(lines, "\n")
		lines = lines[:0]
		executeCell(ctx, k, cell, out, errOut)
	}

	fmt.Fprint(errOut, replPrompt)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.TrimSpace(line) == replQuit:
			submit()
			return nil
		case strings.TrimSpace(line) == "":
			submit()
			fmt.Fprint(errOut, replPrompt)
		default:
			lines = append(lines, line)
		}
		if pkgcontext.IsCancelled(ctx) {
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	submit()
	return nil
}

func executeCell(ctx context.Context, k *kernel.Kernel, cell string, out, errOut io.Writer) {
	reply, err := k.Execute(ctx, cell, out)
	if err != nil {
		if celldockErr, ok := celldockerrors.AsCelldockError(err); ok {
			fmt.Fprintf(errOut, "%s: %s\n", celldockErr.Code, celldockErr.Display())
		} else {
			fmt.Fprintf(errOut, "error: %v\n", err)
		}
		return
	}

	if reply.Status == kernel.StatusError {
		fmt.Fprintf(errOut, "%s: %s\n", reply.Error.Code, reply.Error.Display())
		return
	}
	if reply.Display != "" {
		fmt.Fprintln(out, strings.TrimRight(reply.Display, "\n"))
	}
	if reply.NextInput != "" {
		fmt.Fprintf(errOut, "cell expands to:\n%s\n", reply.NextInput)
	}
	if reply.Stage != nil {
		fmt.Fprintf(errOut, "=> %s\n", reply.ImageID)
	}
}

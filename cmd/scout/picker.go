package main

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/term"
)

// pick shows lines as a list the user moves through with the arrow keys.
// Enter calls open with the selected index in cooked mode, then returns to
// the list; Esc or Ctrl-C leaves.
func pick(header []string, lines []string, open func(i int)) {
	if len(lines) == 0 {
		return
	}
	enableVT()

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Println("(interactive selection not supported on this terminal)")
		return
	}
	defer func() { _ = term.Restore(fd, oldState) }()

	reader := bufio.NewReader(os.Stdin)
	selected := 0

	// Raw mode does not translate \n, so lines end in \r\n.
	redraw := func() {
		fmt.Print("\033[H\033[2J")
		for _, h := range header {
			fmt.Print("  " + h + "\r\n")
		}
		for i, l := range lines {
			prefix := "  "
			if i == selected {
				prefix = "> "
			}
			fmt.Print(prefix + l + "\r\n")
		}
		fmt.Print("(↑/↓ to navigate, Enter to view details, Esc to quit)\r\n")
	}
	move := func(delta int) {
		if n := selected + delta; n >= 0 && n < len(lines) {
			selected = n
			redraw()
		}
	}
	show := func() bool {
		_ = term.Restore(fd, oldState)
		fmt.Println()
		open(selected)

		fmt.Print("\n(press Enter to return)")
		_, _ = bufio.NewReader(os.Stdin).ReadBytes('\n')

		oldState, err = term.MakeRaw(fd)
		if err != nil {
			return false
		}
		reader = bufio.NewReader(os.Stdin)
		redraw()
		return true
	}

	redraw()
	for {
		b1, err := reader.ReadByte()
		if err != nil {
			return
		}
		// Windows console arrows arrive as 0 or 224 followed by a scan code.
		if b1 == 0 || b1 == 224 {
			b2, _ := reader.ReadByte()
			switch b2 {
			case 72:
				move(-1)
			case 80:
				move(1)
			case 13:
				if !show() {
					return
				}
			}
			continue
		}

		switch b1 {
		case 27:
			if reader.Buffered() == 0 {
				fmt.Print("\r\n")
				return
			}
			if b2, _ := reader.ReadByte(); b2 != '[' || reader.Buffered() == 0 {
				continue
			}
			switch b3, _ := reader.ReadByte(); b3 {
			case 'A':
				move(-1)
			case 'B':
				move(1)
			}
		case 'k':
			move(-1)
		case 'j':
			move(1)
		case '\r', '\n':
			if !show() {
				return
			}
		case 3, 'q':
			fmt.Print("\r\n")
			return
		}
	}
}

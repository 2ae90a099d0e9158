package sapgui

import "strings"

// DialogState is a snapshot of the modal dialog of a session.
type DialogState struct {
	Open  bool
	Title string
	Text  string
}

// DialogText extracts the message text of a modal window. The text is
// spread over the labels of the window's second child container; the
// trimmed fragments are joined and terminated with a period.
func DialogText(w Element) string {
	if w == nil {
		return ""
	}
	children := w.Children()
	if len(children) < 2 {
		return ""
	}
	var lines []string
	for _, child := range children[1].Children() {
		text := strings.TrimSpace(child.Text())
		if text != "" {
			lines = append(lines, text)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, " ") + "."
}

// IsModalOpen reports whether the active window of sess is a modal dialog.
// With a non-empty substr the dialog text must also contain substr.
func IsModalOpen(sess Session, substr string) bool {
	if sess == nil {
		return false
	}
	w := sess.ActiveWindow()
	if w == nil || w.Type() != TypeModalWindow {
		return false
	}
	if substr == "" {
		return true
	}
	return strings.Contains(DialogText(w), substr)
}

// CurrentDialog captures the state of the active modal dialog.
func CurrentDialog(sess Session) DialogState {
	if sess == nil {
		return DialogState{}
	}
	w := sess.ActiveWindow()
	if w == nil || w.Type() != TypeModalWindow {
		return DialogState{}
	}
	return DialogState{Open: true, Title: w.Text(), Text: DialogText(w)}
}

// CloseDialog confirms or declines the active dialog. A dialog titled
// "Information" has no choice buttons and is dismissed with Enter or F12;
// every other dialog is closed by pressing its "Yes" or "No" button. When
// no matching affordance exists the call is a no-op.
func CloseDialog(sess Session, confirm bool) error {
	if sess == nil {
		return nil
	}
	w := sess.ActiveWindow()
	if w == nil {
		return nil
	}
	if w.Text() == "Information" {
		if confirm {
			return w.SendVKey(VKeyEnter)
		}
		return w.SendVKey(VKeyCancel)
	}
	caption := "No"
	if confirm {
		caption = "Yes"
	}
	for _, child := range w.Children() {
		for _, grandchild := range child.Children() {
			if grandchild.Type() != TypeButton {
				continue
			}
			if strings.TrimSpace(grandchild.Text()) != caption {
				continue
			}
			return grandchild.Press()
		}
	}
	return nil
}

package dispatch

// CommandMarker prefixes bot commands; marker-prefixed text never reaches
// search.
const CommandMarker = "/"

// The four reserved menu labels. They are rendered as a persistent reply
// keyboard on /start and never enter search.
const (
	MenuAdd    = "➕ Add sticker"
	MenuBrowse = "📚 My stickers"
	MenuStats  = "📈 Stats"
	MenuHelp   = "ℹ️ Help"
)

// MenuLabels returns the reserved labels in keyboard order.
func MenuLabels() []string {
	return []string{MenuAdd, MenuBrowse, MenuStats, MenuHelp}
}

const greetingText = "Hi! I turn words into stickers.\n\n" +
	"Teach me: pick \"" + MenuAdd + "\", send trigger words, then the sticker. " +
	"After that, just type a matching word and I'll answer with the sticker."

const helpText = "Commands:\n" +
	"/add — bind trigger words to a sticker or photo\n" +
	"/mine — browse and delete your stickers\n" +
	"/stats — usage statistics\n" +
	"/cancel — abort the current add flow\n\n" +
	"Or just type a word: if it matches one of your triggers, the sticker comes back."

const midFlowCommandText = "We're in the middle of adding a sticker. Finish it, or /cancel first."

const unknownCommandText = "I don't know that command. Try /help."

const apologyText = "Something went wrong on my side. Please try again."

package journal

var (
	// J is a globally accessible Journal. It starts being NilJournal, and the
	// CLI resets it to the filesystem journal of the opened repo. Components
	// that are not handed a journal explicitly can record through
	// journal.J.RecordEvent(...).
	J Journal = NilJournal() // nolint
)

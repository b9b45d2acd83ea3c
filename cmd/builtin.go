package cmd

// Built-in plugins register themselves with the default catalog.
import (
	_ "simplebot/pkg/plugins/assistant"
	_ "simplebot/pkg/plugins/blacklist"
	_ "simplebot/pkg/plugins/echo"
	_ "simplebot/pkg/plugins/help"
)

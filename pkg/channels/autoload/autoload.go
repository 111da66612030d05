// Package autoload registers all built-in channels.
package autoload

import (
	_ "marketmate/pkg/channels/telegram"
	_ "marketmate/pkg/channels/web"
)

// Package builtins links every intrinsic plugin into the binary. Each plugin
// registers itself with the runtime registry from init.
package builtins

import (
	_ "github.com/xirelogy/go-zscript/internal/builtins/bind"
	_ "github.com/xirelogy/go-zscript/internal/builtins/delegate"
	_ "github.com/xirelogy/go-zscript/internal/builtins/isnone"
	_ "github.com/xirelogy/go-zscript/internal/builtins/size"
	_ "github.com/xirelogy/go-zscript/internal/builtins/tostring"
	_ "github.com/xirelogy/go-zscript/internal/builtins/weakref"
)

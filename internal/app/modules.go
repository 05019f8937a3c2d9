package app

import (
	"github.com/vk/bert/internal/registry"
	"github.com/vk/bert/modules/add"
	"github.com/vk/bert/modules/env"
	"github.com/vk/bert/modules/export_bin"
	"github.com/vk/bert/modules/export_file"
	"github.com/vk/bert/modules/export_tar"
	"github.com/vk/bert/modules/fail"
	"github.com/vk/bert/modules/fetch"
	"github.com/vk/bert/modules/git"
	"github.com/vk/bert/modules/import_tar"
	"github.com/vk/bert/modules/include_vars"
	"github.com/vk/bert/modules/read_file"
	"github.com/vk/bert/modules/run"
	"github.com/vk/bert/modules/script"
	"github.com/vk/bert/modules/set_image_attr"
	"github.com/vk/bert/modules/set_var"
)

// coreModules is the definitive list of all task types compiled into the
// bert binary.
var coreModules = []registry.Module{
	&run.Module{},
	&script.Module{},
	&add.Module{},
	&env.Module{},
	&set_var.Module{},
	&set_image_attr.Module{},
	&read_file.Module{},
	&include_vars.Module{},
	&fail.Module{},
	&fetch.Module{},
	&import_tar.Module{},
	&export_tar.Module{},
	&export_file.Module{},
	&export_bin.Module{},
	&git.Module{},
}

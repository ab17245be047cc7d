package prayer

import "infodisplay/pkg/plugin"

func init() {
	plugin.Register(plugin.PluginInfo{
		Name:        Name,
		Description: Description,
		Priority:    plugin.PriorityDefault,
		Factory:     createPlugin,
	})
}

func createPlugin(ctx *plugin.Context) (plugin.Plugin, error) {
	p, err := New(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}

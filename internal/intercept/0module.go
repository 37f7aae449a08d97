package intercept

import "go.uber.org/fx"

func Module() fx.Option {
	return fx.Module("intercept", fx.Provide(
		NewClassifier,
		NewProxy,
	))
}

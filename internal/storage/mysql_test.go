package storage

import (
	"io"

	"quant-decision-core/internal/backtest"
	"quant-decision-core/internal/risk"
	"quant-decision-core/internal/signal"
)

// 编译期校验：Manager必须满足应用装配依赖的全部接口
var (
	_ io.Closer      = (*Manager)(nil)
	_ signal.Store   = (*Manager)(nil)
	_ risk.Store     = (*Manager)(nil)
	_ backtest.Store = (*Manager)(nil)
)

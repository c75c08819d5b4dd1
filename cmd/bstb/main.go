package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/internal/engine"
	"github.com/skalibog/bstb/internal/exchange"
	"github.com/skalibog/bstb/internal/notify"
	"github.com/skalibog/bstb/internal/storage"
	"github.com/skalibog/bstb/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Init()
	defer logger.GetLogger().Sync()

	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	flag.Parse()

	// Проверяем наличие файла конфигурации
	logger.Info("Проверка наличия файла конфигурации", zap.String("path", *configPath))
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Fatal("Файл конфигурации не найден", zap.String("path", *configPath))
	}

	// Загружаем конфигурацию
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	// Контекст отменяется по сигналу завершения, цикл
	// останавливается на ближайшей границе
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Завершение работы...")
		cancel()
	}()

	// Инициализируем хранилище телеметрии
	store, err := storage.NewInfluxDBStorage(cfg.Storage)
	if err != nil {
		logger.Fatal("Ошибка инициализации хранилища", zap.Error(err))
	}
	defer store.Close()

	// Инициализируем клиент биржи
	client, err := exchange.NewBinanceClient(cfg.Binance)
	if err != nil {
		logger.Fatal("Ошибка инициализации клиента биржи", zap.Error(err))
	}

	// Уведомления: Telegram, если настроен, иначе лог
	var notifier notify.Notifier
	if cfg.Telegram.Token != "" {
		notifier, err = notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			logger.Fatal("Ошибка инициализации Telegram", zap.Error(err))
		}
	} else {
		notifier = notify.NewStdout()
	}

	// Запускаем движок в основном потоке (блокирующий вызов)
	bot := engine.New(cfg, client, client, store, notifier)
	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Цикл завершился с ошибкой", zap.Error(err))
	}
}

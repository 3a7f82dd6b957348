package main

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	paybridge "paybridge_back"
	"paybridge_back/models"
	"paybridge_back/pkg/gateway"
	"paybridge_back/pkg/handler"
	"paybridge_back/pkg/ledgerclient"
	"paybridge_back/pkg/repository"
	"paybridge_back/pkg/service"
)

func main() {
	logrus.SetFormatter(new(logrus.JSONFormatter))

	if err := godotenv.Load(); err != nil {
		logrus.Infof("no .env file loaded: %s", err)
	}
	if err := initConfig(); err != nil {
		logrus.Fatalf("config init failed: %s", err.Error())
	}

	db, err := repository.NewPostgresDB(repository.Config{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   viper.GetString("db.dbname"),
		SSLMode:  viper.GetString("db.sslmode"),
	})
	if err != nil {
		logrus.Fatalf("database init failed: %s", err.Error())
	}

	ledger := ledgerclient.New(
		viper.GetString("ledger.base_url"),
		os.Getenv("LEDGER_ACCESS_KEY"),
		os.Getenv("LEDGER_SECRET_KEY"),
	)

	// One gateway instance per provider for the process lifetime, passed by
	// reference into the orchestrator.
	gateways := gateway.NewRegistry()
	gateways.Register(models.ProviderCardNetwork,
		gateway.NewCardNetworkGateway(viper.GetString("gateways.cardnet.base_url"), os.Getenv("CARDNET_API_TOKEN")))
	gateways.Register(models.ProviderInternational,
		gateway.NewInternationalGateway(viper.GetString("gateways.intl.base_url"), os.Getenv("INTL_API_TOKEN")))
	gateways.Register(models.ProviderPointOfSale,
		gateway.NewPointOfSaleGateway(viper.GetString("gateways.pos.base_url"), os.Getenv("POS_API_TOKEN")))
	gateways.Register(models.ProviderWalletNetwork,
		gateway.NewWalletNetworkGateway(viper.GetString("gateways.walletnet.base_url"), os.Getenv("WALLETNET_API_TOKEN")))

	repos := repository.NewRepository(db)
	services := service.NewService(repos, ledger, gateways, service.Config{
		PlatformAccountID:   viper.GetString("ledger.platform_account_id"),
		SupportedCurrencies: viper.GetStringSlice("currencies"),
	})

	handlers := handler.NewHandler(services, handler.Config{
		APIKey:         os.Getenv("API_KEY"),
		WebhookBaseURL: viper.GetString("webhooks.base_url"),
		AllowOrigins:   viper.GetStringSlice("cors.allow_origins"),
		WebhookCreds:   webhookCreds(),
	})

	logrus.Info("starting transfer orchestrator")
	srv := new(paybridge.Server)
	if err := srv.Run(os.Getenv("PORT"), handlers.InitRoute()); err != nil {
		logrus.Fatalf("server stopped: %s", err)
	}
}

func webhookCreds() map[string]handler.WebhookCredentials {
	creds := make(map[string]handler.WebhookCredentials)
	for _, source := range []string{"ledger", "cardnet", "intl", "pos", "walletnet"} {
		prefix := "WEBHOOK_" + strings.ToUpper(source)
		creds[source] = handler.WebhookCredentials{
			AccessKey: os.Getenv(prefix + "_ACCESS_KEY"),
			SecretKey: os.Getenv(prefix + "_SECRET_KEY"),
		}
	}
	return creds
}

func initConfig() error {
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

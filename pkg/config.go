package solgate

import (
	"github.com/jinzhu/configor"
)

type Config struct {
	Solgate struct {
		ServiceName string `default:"Solgate"`
		// key for which Node struct to use
		Network string `default:"mainnet" required:"true"`
	}

	// info for connecting to a Solana RPC node, keyed by network
	Node map[string]NodeConfig

	Monitor struct {
		// seconds between poll cycles for each watched invoice
		PollSecs int `default:"10"`
		// how many recent signatures to scan per detection cycle
		SigLimit int `default:"10"`
		// bounded retry count when broadcasting a settlement txn
		SendRetries int `default:"3"`
	}

	Settlement struct {
		// operator (house) payout address, receives the fee share
		HouseAddress string `required:"true"`
		// operator share of the distributable pool, in basis points
		HouseFeeBP int64 `default:"500"`
		// fee used when the node cannot estimate one (lamports)
		FallbackFee int64 `default:"20000"`
	}

	Auth struct {
		SessionSecret string `required:"true"`
		SessionDays   int    `default:"7"`
		BcryptCost    int    `default:"10"`
	}

	Store struct {
		DBFile string `default:"solgate.db"`
	}

	WebAPI struct {
		Bind          string `default:"localhost"`
		Port          string `default:"8080"`
		PubAPIRootURL string
	}

	// event-log receivers, see receivers.SetupLoggers
	Loggers map[string]LoggersConfig

	// outbound ZMQ PUB emitters, see receivers.SetupZMQEmitters
	ZMQEmitters map[string]ZMQEmitterConfig
}

type NodeConfig struct {
	RPCURL     string `default:"https://api.mainnet-beta.solana.com"`
	WSURL      string `default:"wss://api.mainnet-beta.solana.com"`
	Commitment string `default:"confirmed"`
}

type LoggersConfig struct {
	Path  string
	Types []string
}

type ZMQEmitterConfig struct {
	Bind  string
	Types []string
}

// NodeOf returns the NodeConfig selected by Solgate.Network.
func (c Config) NodeOf() NodeConfig {
	return c.Node[c.Solgate.Network]
}

func LoadConfig(confPath string) Config {
	c := Config{}
	configor.Load(&c, confPath)
	return c
}

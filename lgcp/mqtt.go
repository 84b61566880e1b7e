package lgcp

import (
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ConnectMQTT connects to the broker named in the config so fit summaries
// can be published. Environment variables override the file settings
// (MQTT_BROKER, MQTT_CLIENT_ID, MQTT_USERNAME, MQTT_PASSWORD). Returns
// nil with no error when no broker is configured: publishing is optional.
func ConnectMQTT(config *MQTTConfig) (mqtt.Client, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.Broker != "" {
		broker = config.Broker
	}
	if broker == "" {
		log.Println("MQTT disabled: no broker configured")
		return nil, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config != nil && config.ClientID != "" {
		clientID = config.ClientID
	}
	if clientID == "" {
		clientID = "punctamesh"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config != nil && config.Username != "" {
		username = config.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config != nil && config.Password != "" {
			password = config.Password
		}
		opts.SetPassword(password)
	}

	// Batch runs connect once; no auto reconnect needed.
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("MQTT connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT connect to %s: %w", broker, err)
	}
	log.Printf("Connected to MQTT broker %s as %s", broker, clientID)
	return client, nil
}

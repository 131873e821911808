package config

// Environment variable overriding the router address
const RouterEnvVar = "MAMOC_ROUTER"

// Default router address (WAMP over websocket)
const DefaultRouterURL = "ws://127.0.0.1:8080/ws"

// Message bus router URL
const ROUTER_URL = "router.url"

// WAMP realm joined by the server
const ROUTER_REALM = "router.realm"

// Default WAMP realm
const DefaultRealm = "mamoc_realm"

// Seconds to wait for the router handshake
const ROUTER_TIMEOUT = "router.timeout"

// Prefix prepended to every topic and procedure name (e.g. "uk.ac.standrews.cs.mamoc.")
const TOPIC_PREFIX = "bus.topic.prefix"

// Directory holding materialized class units
const CLASS_UNITS_DIR = "storage.classes.dir"

// Directory where received files are written
const RECEIVED_FILES_DIR = "storage.files.dir"

// Directory of the operation->class index (badger); empty = in memory
const INDEX_DIR = "storage.index.dir"

// Number of class units kept in the in-memory front cache
const CACHE_SIZE = "cache.size"

// Expiration of front cache items (seconds)
const CACHE_ITEM_EXPIRATION = "cache.expiration"

// Cleanup interval of the front cache janitor (seconds)
const CACHE_CLEANUP = "cache.cleanup"

// Execution engine: process, docker or podman
const ENGINE_KIND = "engine.kind"

// Java compiler executable
const ENGINE_JAVAC = "engine.javac"

// Java launcher executable
const ENGINE_JAVA = "engine.java"

// Container image used by the docker and podman engines
const ENGINE_IMAGE = "engine.image"

// Memory limit for engine containers (MB)
const ENGINE_MEMORY_MB = "engine.memory"

// Max seconds a single compile+run may take (0 = no limit)
const ENGINE_TIMEOUT = "engine.timeout"

// Podman API socket
const PODMAN_SOCKET = "engine.podman.socket"

// Forces engine images to be pulled the first time they are used,
// even if they are locally available (true/false).
const FACTORY_REFRESH_IMAGES = "engine.images.refresh"

// Milliseconds between two chunks of a progressive transfer
const TRANSFER_PACING = "transfer.pacing"

// Port of the admin HTTP API (0 disables it)
const API_PORT = "api.port"

// Enables prometheus metrics (true/false)
const METRICS_ENABLED = "metrics.enabled"

// Enables OpenTelemetry tracing of offload requests (true/false)
const TRACING_ENABLED = "tracing.enabled"

// Enables etcd integration (node presence, cluster-wide procedure claims)
const ETCD_ENABLED = "etcd.enabled"

// Etcd endpoints, comma separated (host:port)
const ETCD_ADDRESS = "etcd.address"

// Timeout (ms) for establishing the etcd connection
const ETCD_DIAL_TIMEOUT = "etcd.dial_timeout"

// TTL (seconds) of the node presence lease
const REGISTRATION_TTL = "registry.ttl"

// Etcd key prefix for node presence and procedure claims
const REGISTRY_BASEDIR = "registry.basedir"

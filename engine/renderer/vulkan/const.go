package vulkan

/**
 * @brief Max number of binding slots one stage may declare per set kind.
 * Mirrors the limit reflection enforces upstream; binding numbers inside a
 * set are derived from it.
 */
const VULKAN_MAX_BINDING_SLOTS uint32 = 32

/**
 * @brief Default per-pool set capacity. Every descriptor pool grows
 * geometrically (10, 100, ...) toward the configured capacity; this is the
 * value used when the config does not override it.
 */
const VULKAN_DEFAULT_POOL_SET_CAPACITY uint32 = 100

/**
 * @brief First allocation burst of a fresh descriptor pool.
 */
const VULKAN_POOL_GROWTH_BASE uint32 = 10

/**
 * @brief Max population attempts per update before the draw is abandoned.
 * Each attempt beyond the first implies a session rotation, so this bounds
 * how many rotations one draw may force.
 */
const VULKAN_MAX_POPULATE_ATTEMPTS = 8

/**
 * @brief How many sets the dedicated dummy pool holds. One is enough; a
 * few spares guard against future multi-context sharing.
 * @todo TODO: revisit if contexts ever share dummy pools.
 */
const VULKAN_DUMMY_POOL_SETS uint32 = 4
